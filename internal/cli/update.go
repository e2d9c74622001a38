package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// UpdateCmd returns the update command.
func UpdateCmd(a *app) *Command {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	meta := fs.String("meta", "", "Metadata JSON document (requires --metadata)")

	return &Command{
		Flags: fs,
		Usage: "update <id> <json|-> [flags]",
		Short: "Replace an entry's payload",
		Long: `Replace the payload of an existing entry and print its new revision.
The entry keeps its id and category and becomes the latest entry.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			id, err := parseID(args)
			if err != nil {
				return err
			}

			payload, err := readPayload(o, args[1:])
			if err != nil {
				return err
			}

			metaDoc, err := a.metaArg(*meta, fs.Changed("meta"))
			if err != nil {
				return err
			}

			s, err := a.catalog(ctx, o)
			if err != nil {
				return err
			}

			rev, err := s.Update(ctx, id, payload, metaDoc)
			if err != nil {
				return err
			}

			o.Println(rev)

			return nil
		},
	}
}
