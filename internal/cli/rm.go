package cli

import (
	"context"
)

// RmCmd returns the rm command.
func RmCmd(a *app) *Command {
	return &Command{
		Usage: "rm <id>...",
		Short: "Delete entries",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errIDRequired
			}

			s, err := a.catalog(ctx, o)
			if err != nil {
				return err
			}

			for i := range args {
				id, err := parseID(args[i:])
				if err != nil {
					return err
				}

				err = s.Delete(ctx, id)
				if err != nil {
					return err
				}

				o.Println("deleted", id)
			}

			return nil
		},
	}
}
