package cli

import (
	"context"
	"time"
)

// InfoCmd returns the info command.
func InfoCmd(a *app) *Command {
	return &Command{
		Usage: "info",
		Short: "Show catalog statistics",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			s, err := a.catalog(ctx, o)
			if err != nil {
				return err
			}

			st, err := s.Stat(ctx)
			if err != nil {
				return err
			}

			o.Println("dir:", st.Dir)
			o.Println("manual:", st.Manual)
			o.Printf("automatic: %d/%d\n", st.Automatic, st.AutomaticCapacity)
			o.Println("next revision:", st.NextRevision)
			o.Println("schema version:", st.SchemaVersion)
			o.Println("metadata:", st.WithMetadata)

			if l := st.Latest; l != nil {
				o.Printf("latest: %s (%s, revision %d, %s)\n", l.ID, l.Category, l.Revision, l.Timestamp.Format(time.RFC3339))
			} else {
				o.Println("latest: none")
			}

			o.Println("repaired on open:", st.Repairs.Total())

			m := a.metrics.Snapshot()
			o.Printf("operations: %d (%d errors, %d timeouts, avg %s)\n",
				m.Operations, m.Errors, m.Timeouts, time.Duration(m.AvgNanos))

			return nil
		},
	}
}
