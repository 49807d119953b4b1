package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luinbytes/media-deduplicator/journal"
	"github.com/luinbytes/media-deduplicator/storage"
	"github.com/luinbytes/media-deduplicator/tui"
	"github.com/luinbytes/media-deduplicator/undo"
)

func newUndoCmd(a *app) *cobra.Command {
	var last, preview bool

	cmd := &cobra.Command{
		Use:   "undo [SESSION_ID]",
		Short: "Reverse the file operations of a session",
		Long: `Reverses every completed operation of a session, last one first, and
removes directories the session created once they are empty. Running undo
again only retries what failed.

Without a session id a picker opens on a terminal.`,
		Example: `  media-deduplicator undo --last
  media-deduplicator undo 20240115-093000-0193a2b4 --preview`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			fs, err := storage.NewLocalProvider(".")
			if err != nil {
				return err
			}
			m := undo.New(j, fs, undo.WithLogger(a.log))

			id, err := pickSession(cmd, m, args, last)
			if err != nil || id == "" {
				return err
			}
			w := cmd.OutOrStdout()

			if preview {
				entries, err := m.Preview(id)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(w, "would undo %d %s %s\n", e.Seq, e.Op, describe(e))
				}
				fmt.Fprintf(w, "%d operations to undo\n", len(entries))
				return nil
			}

			rep, err := m.Undo(cmd.Context(), id)
			if rep != nil {
				printReport(w, rep)
			}
			if err != nil {
				return err
			}
			if !rep.Complete() {
				return fmt.Errorf("session %s was only partially undone", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&last, "last", false, "Undo the most recent session")
	cmd.Flags().BoolVar(&preview, "preview", false, "List what would be undone without changing anything")

	return cmd
}

func pickSession(cmd *cobra.Command, m *undo.Manager, args []string, last bool) (string, error) {
	switch {
	case len(args) == 1 && last:
		return "", errors.New("give a session id or --last, not both")
	case len(args) == 1:
		return args[0], nil
	}

	sessions, err := m.ListSessions()
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", errors.New("no sessions recorded")
	}
	if last {
		return sessions[0].ID, nil
	}
	if !interactive(cmd.InOrStdin(), cmd.OutOrStdout()) {
		return "", errors.New("no session id given (use --last or run on a terminal to pick one)")
	}
	return tui.PickSession(sessions)
}

func describe(e journal.Entry) string {
	if e.Op == journal.OpDelete {
		return e.Src
	}
	return e.Dst + " -> " + e.Src
}

func printReport(w io.Writer, rep *undo.Report) {
	for _, o := range rep.Outcomes {
		line := fmt.Sprintf("%-13s %d %s %s", o.Result, o.Entry.Seq, o.Entry.Op, describe(o.Entry))
		if o.Detail != "" {
			line += " (" + o.Detail + ")"
		}
		if o.Err != nil && o.Result == undo.Failed {
			line += ": " + o.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	for _, d := range rep.RemovedDirs {
		fmt.Fprintf(w, "removed dir   %s\n", d)
	}
	fmt.Fprintf(w, "\nSession %s %s: %d reverted, %d failed, %d unrecoverable, %d skipped\n",
		rep.SessionID, rep.Status,
		rep.Count(undo.Reverted), rep.Count(undo.Failed), rep.Count(undo.Unrecoverable), rep.Count(undo.Skipped))
}
