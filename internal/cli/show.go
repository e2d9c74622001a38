package cli

import (
	"context"
	"time"

	flag "github.com/spf13/pflag"
)

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	meta := fs.Bool("metadata", false, "Print the metadata document instead of the payload")
	header := fs.BoolP("header", "H", false, "Print id, category, revision and timestamp before the document")

	return &Command{
		Flags: fs,
		Usage: "show <id> [flags]",
		Short: "Print an entry's payload",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execShow(ctx, a, o, args, *meta, *header)
		},
	}
}

func execShow(ctx context.Context, a *app, o *IO, args []string, meta, header bool) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	s, err := a.catalog(ctx, o)
	if err != nil {
		return err
	}

	get := s.Get
	if meta {
		get = s.GetMetadata
	}

	rec, err := get(ctx, id)
	if err != nil {
		return err
	}

	if header {
		o.Println("id:", rec.ID)
		o.Println("category:", rec.Category)
		o.Println("revision:", rec.Revision)
		o.Println("timestamp:", rec.Timestamp.Format(time.RFC3339Nano))
		o.Println()
	}

	o.Printf("%s\n", rec.Payload)

	return nil
}
