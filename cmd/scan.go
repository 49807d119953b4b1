package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luinbytes/media-deduplicator/cluster"
	"github.com/luinbytes/media-deduplicator/scan"
	"github.com/luinbytes/media-deduplicator/storage"
	"github.com/luinbytes/media-deduplicator/tui"
)

func newScanCmd(a *app) *cobra.Command {
	var source, dest string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Report which images in a source are new or duplicates",
		Long: `Hashes every image under --source, and under --dest when given, groups
visually equivalent images and reports for each source image whether it is
new, a duplicate of a better source image, or already in the destination.

Nothing is moved. The destination may be a Google Drive folder.`,
		Example: `  # Find duplicates inside one folder
  media-deduplicator scan --source ~/Pictures/Import

  # Check an import against the library on Google Drive
  media-deduplicator scan --source ~/Pictures/Import --dest gdrive:Photos`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, dst, err := a.scanBoth(ctx, cmd, storage.ParseLocation(source), dest)
			if err != nil {
				return err
			}

			var dstRecords []cluster.Record
			if dst != nil {
				dstRecords = dst.Records
			}
			decisions, err := cluster.Resolve(src.Records, dstRecords, a.cfg.Threshold, cluster.WithWorkers(a.cfg.WorkerCount()))
			if err != nil {
				return err
			}
			printDecisions(cmd.OutOrStdout(), decisions, src, dst)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Folder to check")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Library to check against (folder or gdrive:FOLDER)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

// scanBoth hashes the source and, if dest is set, the destination. dst is
// nil without a destination.
func (a *app) scanBoth(ctx context.Context, cmd *cobra.Command, source storage.Location, dest string) (src, dst *scan.Library, err error) {
	src, err = a.scanLocation(ctx, cmd, source, cluster.Source)
	if err != nil {
		return nil, nil, err
	}
	if dest == "" {
		return src, nil, nil
	}
	dst, err = a.scanLocation(ctx, cmd, storage.ParseLocation(dest), cluster.Destination)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

func (a *app) scanLocation(ctx context.Context, cmd *cobra.Command, loc storage.Location, scope cluster.Scope) (*scan.Library, error) {
	p, dir, err := storage.Open(ctx, loc, a.cfg.Drive())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}
	defer p.Close()

	pool, err := a.newPool(cmd.ErrOrStderr(), "hashing "+scope.String())
	if err != nil {
		return nil, err
	}
	lib, err := scan.New(pool, scan.WithLogger(a.log)).Scan(ctx, p, dir, scope)
	if err != nil {
		if lib != nil && lib.Dropped > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted: %d images in %s were not hashed\n", lib.Dropped, loc)
		}
		return nil, err
	}
	for _, f := range lib.Failures {
		a.log.Warn().Err(f.Err).Str("path", lib.Path(f.ID)).Msg("skipped unreadable image")
	}
	return lib, nil
}

func printDecisions(w io.Writer, decisions []cluster.Decision, src, dst *scan.Library) {
	counts := map[cluster.Tag]int{}
	for _, d := range decisions {
		counts[d.Tag]++
		switch d.Tag {
		case cluster.Novel:
			fmt.Fprintf(w, "%-22s %s\n", d.Tag, src.Path(d.ID))
		case cluster.RedundantSource:
			fmt.Fprintf(w, "%-22s %s (keep %s)\n", d.Tag, src.Path(d.ID), src.Path(d.Kept))
		case cluster.RedundantDestination:
			match := d.Match
			if dst != nil {
				match = dst.Path(d.Match)
			}
			fmt.Fprintf(w, "%-22s %s (in library as %s)\n", d.Tag, src.Path(d.ID), match)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d images: %d new, %d duplicates in source, %d already in library",
		len(decisions), counts[cluster.Novel], counts[cluster.RedundantSource], counts[cluster.RedundantDestination])
	if n := len(src.Failures); n > 0 {
		fmt.Fprintf(w, ", %d unreadable", n)
	}
	if n := len(src.Videos); n > 0 {
		fmt.Fprintf(w, ", %d videos not compared", n)
	}
	fmt.Fprintln(w)
	if n := src.RedundantBytes(decisions); n > 0 {
		fmt.Fprintf(w, "Space recoverable: %s\n", tui.FormatBytes(n))
	}
}
