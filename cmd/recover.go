package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luinbytes/media-deduplicator/journal"
	"github.com/luinbytes/media-deduplicator/storage"
)

func newRecoverCmd(a *app) *cobra.Command {
	var closeSession bool

	cmd := &cobra.Command{
		Use:   "recover SESSION_ID",
		Short: "Check what an interrupted session actually did",
		Long: `Compares every operation that was announced but never confirmed against
the files on disk and says whether it ran.

With --close a session left IN_PROGRESS by a crash is marked ABORTED, so it
can be undone like any other.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			id := args[0]
			sess, err := j.Load(id)
			if err != nil {
				return err
			}
			fs, err := storage.NewLocalProvider(".")
			if err != nil {
				return err
			}
			findings, err := journal.Inspect(sess, fs.Exists)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session %s (%s)\n", sess.ID, sess.Status)
			if sess.TornTail {
				fmt.Fprintln(w, "The last journal line was cut off by the crash and is ignored.")
			}
			for _, f := range findings {
				fmt.Fprintf(w, "%-16s %d %s %s (%s)\n", f.Verdict, f.Entry.Seq, f.Entry.Op, f.Entry.Src, f.Reason)
			}
			fmt.Fprintf(w, "%d unconfirmed operations\n", len(findings))

			if !closeSession {
				return nil
			}
			if sess.Status != journal.SessionInProgress {
				return fmt.Errorf("session %s is already %s", id, sess.Status)
			}
			if _, err := j.Resume(id); err != nil {
				return err
			}
			if err := j.CloseSession(id, journal.SessionAborted); err != nil {
				return err
			}
			fmt.Fprintf(w, "Session %s marked %s\n", id, journal.SessionAborted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&closeSession, "close", false, "Mark an IN_PROGRESS session as ABORTED")

	return cmd
}
