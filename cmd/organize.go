package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luinbytes/media-deduplicator/cluster"
	"github.com/luinbytes/media-deduplicator/journal"
	"github.com/luinbytes/media-deduplicator/logging"
	"github.com/luinbytes/media-deduplicator/organize"
	"github.com/luinbytes/media-deduplicator/storage"
	"github.com/luinbytes/media-deduplicator/tui"
)

func newOrganizeCmd(a *app) *cobra.Command {
	var (
		source, dest  string
		copyFiles     bool
		duplicates    string
		duplicatesDir string
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "File new images into the library by date",
		Long: `Moves (or copies) every image under --source that is not already in
--dest into dest/YYYY/MM/, using the EXIF capture date or the file's
modification time. Duplicates are left in place unless --duplicates says
otherwise. Videos are filed by modification time and never compared.

Every operation is journaled before it runs. Use "undo" to reverse a run.`,
		Example: `  # Preview an import
  media-deduplicator organize --source ~/Import --dest ~/Photos --dry-run

  # Copy new images and set duplicates aside
  media-deduplicator organize --source ~/Import --dest ~/Photos --copy \
      --duplicates move --duplicates-dir ~/Import/dupes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			policy, err := organize.ParseDuplicatePolicy(duplicates)
			if err != nil {
				return err
			}
			srcLoc, dstLoc := storage.ParseLocation(source), storage.ParseLocation(dest)
			if srcLoc.Type != storage.ProviderLocal || dstLoc.Type != storage.ProviderLocal {
				return fmt.Errorf("organize needs local folders; use scan to check against %s", storage.ProviderGoogleDrive)
			}
			fs, err := storage.NewLocalProvider(dest)
			if err != nil {
				return err
			}

			src, err := a.scanLocation(ctx, cmd, srcLoc, cluster.Source)
			if err != nil {
				return err
			}
			// A library that does not exist yet has nothing to match.
			var dstRecords []cluster.Record
			if ok, err := fs.Exists(fs.Root()); err != nil {
				return err
			} else if ok {
				dst, err := a.scanLocation(ctx, cmd, dstLoc, cluster.Destination)
				if err != nil {
					return err
				}
				dstRecords = dst.Records
			}
			decisions, err := cluster.Resolve(src.Records, dstRecords, a.cfg.Threshold, cluster.WithWorkers(a.cfg.WorkerCount()))
			if err != nil {
				return err
			}

			planner := organize.NewPlanner(fs)
			actions, err := planner.Plan(decisions, src.Files, organize.PlanOptions{
				Dest:          fs.Root(),
				DuplicatesDir: duplicatesDir,
				Copy:          copyFiles,
				Duplicates:    policy,
			})
			if err != nil {
				return err
			}
			videos, err := planner.PlanVideos(src.Videos, organize.PlanOptions{Dest: fs.Root(), Copy: copyFiles})
			if err != nil {
				return err
			}
			actions = append(actions, videos...)

			j, err := a.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			opts := []organize.Option{organize.WithLogger(a.log)}
			if errOut := cmd.ErrOrStderr(); logging.IsTerminal(errOut) {
				bar := tui.NewProgress(errOut, "organizing", progressInterval)
				opts = append(opts, organize.WithProgress(bar.Update))
			}
			label := fmt.Sprintf("organize %s -> %s", source, fs.Root())
			res, err := organize.NewExecutor(j, fs, opts...).Run(ctx, label, actions, dryRun)
			printOrganize(cmd.OutOrStdout(), res, src.Path, src.RedundantBytes(decisions))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&source, "source", "s", "", "Folder with images to import")
	f.StringVarP(&dest, "dest", "d", "", "Library folder")
	f.BoolVar(&copyFiles, "copy", false, "Copy new images instead of moving them")
	f.StringVar(&duplicates, "duplicates", string(organize.DuplicatesSkip), "What to do with duplicates: skip, move, copy or delete")
	f.StringVar(&duplicatesDir, "duplicates-dir", "", "Where --duplicates move or copy puts them (default DEST/.duplicates)")
	f.BoolVar(&dryRun, "dry-run", false, "Show what would be done without touching any file")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func printOrganize(w io.Writer, res *organize.Result, display func(string) string, recoverable int64) {
	if res == nil {
		return
	}
	verb := ""
	if res.DryRun {
		verb = "would "
	}
	for _, act := range res.Actions {
		src := display(act.Src)
		switch {
		case act.Op == "":
			fmt.Fprintf(w, "skip      %s (%s)\n", src, act.Reason)
		case act.Err != nil:
			fmt.Fprintf(w, "FAILED    %s %s: %v\n", act.Op, src, act.Err)
		case !res.DryRun && !act.Done:
			fmt.Fprintf(w, "not run   %s %s\n", act.Op, src)
		case act.Op == journal.OpDelete:
			fmt.Fprintf(w, "%s%s %s (%s)\n", verb, act.Op, src, act.Reason)
		default:
			fmt.Fprintf(w, "%s%s %s -> %s\n", verb, act.Op, src, act.Dst)
		}
	}

	fmt.Fprintln(w)
	if recoverable > 0 {
		fmt.Fprintf(w, "Space recoverable: %s\n", tui.FormatBytes(recoverable))
	}
	if res.DryRun {
		fmt.Fprintf(w, "Dry run: %d operations planned, %d images left in place\n", len(res.Actions)-res.Skipped(), res.Skipped())
		return
	}
	fmt.Fprintf(w, "Session %s %s: %d moved, %d copied, %d deleted, %d skipped, %d failed\n",
		res.SessionID, res.Status,
		res.Count(journal.OpMove), res.Count(journal.OpCopy), res.Count(journal.OpDelete),
		res.Skipped(), len(res.Failed()))
	if res.SessionID != "" {
		fmt.Fprintf(w, "Undo with: media-deduplicator undo %s\n", res.SessionID)
	}
}
