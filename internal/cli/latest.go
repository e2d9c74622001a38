package cli

import (
	"context"
)

// LatestCmd returns the latest command.
func LatestCmd(a *app) *Command {
	return &Command{
		Usage: "latest",
		Short: "Print the id of the most recently written entry",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			s, err := a.catalog(ctx, o)
			if err != nil {
				return err
			}

			id, ok, err := s.LatestID(ctx)
			if err != nil {
				return err
			}

			if !ok {
				return errEmptyCatalog
			}

			o.Println(id)

			return nil
		},
	}
}
