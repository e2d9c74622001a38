package cli

import (
	"context"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/slotstore/pkg/catalog"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	manual := fs.BoolP("manual", "m", false, "Only list manual entries")
	automatic := fs.BoolP("automatic", "a", false, "Only list automatic entries")
	quiet := fs.BoolP("quiet", "q", false, "Only print ids")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List entries",
		Long: `List entries, newest revision first. Manual entries are listed before
automatic ones. Columns: id, category, revision, timestamp.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			cats := []catalog.Category{catalog.Manual, catalog.Automatic}

			switch {
			case *manual && !*automatic:
				cats = cats[:1]
			case *automatic && !*manual:
				cats = cats[1:]
			}

			return execLs(ctx, a, o, cats, *quiet)
		},
	}
}

func execLs(ctx context.Context, a *app, o *IO, cats []catalog.Category, quiet bool) error {
	s, err := a.catalog(ctx, o)
	if err != nil {
		return err
	}

	for _, c := range cats {
		entries, err := s.Entries(ctx, c)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if quiet {
				o.Println(e.ID)
				continue
			}

			o.Printf("%s  %-9s  %6d  %s\n", e.ID, e.Category, e.Revision, e.Timestamp.Format(time.RFC3339))
		}
	}

	return nil
}
