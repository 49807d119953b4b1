package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luinbytes/media-deduplicator/journal"
)

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			sessions, err := j.Sessions()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintf(w, "No sessions in %s\n", j.Dir())
				return nil
			}

			fmt.Fprintf(w, "%-26s %-17s %-16s %6s %8s %8s  %s\n", "SESSION", "STATUS", "STARTED", "DONE", "PENDING", "REVERTED", "LABEL")
			for _, s := range sessions {
				c := s.Counts()
				started := ""
				if !s.Started.IsZero() {
					started = s.Started.Local().Format("2006-01-02 15:04")
				}
				status := string(s.Status)
				if s.TornTail {
					status += "*"
				}
				fmt.Fprintf(w, "%-26s %-17s %-16s %6d %8d %8d  %s\n",
					s.ID, status, started,
					c[journal.StatusDone], c[journal.StatusPending], c[journal.StatusReverted], s.Label)
			}
			return nil
		},
	}
}
