package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/slotstore/pkg/catalog"
)

// SaveCmd returns the save command, which creates manual entries.
func SaveCmd(a *app) *Command {
	return createCmd(a, catalog.Manual, "save <json|-> [flags]", "Create a manual entry",
		`Create a manual entry from a JSON document and print its id. Use "-" to
read the document from stdin. Manual entries are only removed by rm.`)
}

// AutosaveCmd returns the autosave command, which creates automatic entries.
func AutosaveCmd(a *app) *Command {
	return createCmd(a, catalog.Automatic, "autosave <json|-> [flags]", "Create an automatic entry",
		`Create an automatic entry from a JSON document and print its id. Once
more automatic entries exist than the configured capacity, the oldest are
deleted.`)
}

func createCmd(a *app, c catalog.Category, usage, short, long string) *Command {
	fs := flag.NewFlagSet(c.String(), flag.ContinueOnError)
	meta := fs.String("meta", "", "Metadata JSON document (requires --metadata)")

	return &Command{
		Flags: fs,
		Usage: usage,
		Short: short,
		Long:  long,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			payload, err := readPayload(o, args)
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

			create := s.CreateManual
			if c == catalog.Automatic {
				create = s.CreateAutomatic
			}

			id, err := create(ctx, payload, metaDoc)
			if err != nil {
				return err
			}

			o.Println(id)

			return nil
		},
	}
}
