package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luinbytes/media-deduplicator/phash"
	"github.com/luinbytes/media-deduplicator/scan"
)

var algoDescriptions = map[phash.Algorithm]string{
	phash.DHash: "Difference Hash - Fast, good for near-duplicates",
	phash.AHash: "Average Hash - Balanced speed and accuracy",
	phash.PHash: "Perceptual Hash - Most robust, slower",
}

func newCompareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare IMAGE1 IMAGE2",
		Short: "Show how similar two images are under every hash",
		Example: `  media-deduplicator compare photo1.jpg photo2.jpg
  media-deduplicator compare --algorithm dhash --threshold 8 a.png b.webp`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img1, img2 := args[0], args[1]
			for _, path := range args {
				if !scan.IsImageFile(path) {
					return fmt.Errorf("%s is not a supported image file", path)
				}
			}

			w := cmd.OutOrStdout()
			rule := strings.Repeat("=", 70)
			fmt.Fprintln(w, rule)
			fmt.Fprintln(w, "IMAGE COMPARISON RESULTS")
			fmt.Fprintln(w, rule)

			distances := map[phash.Algorithm]int{}
			for _, algo := range []phash.Algorithm{phash.DHash, phash.AHash, phash.PHash} {
				h1, err := scan.HashFile(img1, algo)
				if err != nil {
					return fmt.Errorf("failed to hash %s: %w", img1, err)
				}
				h2, err := scan.HashFile(img2, algo)
				if err != nil {
					return fmt.Errorf("failed to hash %s: %w", img2, err)
				}
				dist, err := h1.Distance(h2)
				if err != nil {
					return err
				}
				distances[algo] = dist

				fmt.Fprintf(w, "\n%s (%s):\n", strings.ToUpper(algo.String()), algoDescriptions[algo])
				fmt.Fprintf(w, "  Hash 1: %s\n", h1)
				fmt.Fprintf(w, "  Hash 2: %s\n", h2)
				fmt.Fprintf(w, "  Hamming Distance: %d/%d\n", dist, phash.Bits)
				fmt.Fprintf(w, "  Similarity: %.1f%%\n", phash.Similarity(dist))
			}

			algo := a.cfg.HashAlgorithm()
			dist := distances[algo]
			verdict := "DIFFERENT"
			if dist <= a.cfg.Threshold {
				verdict = "SIMILAR"
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "Images are %s (using %s, threshold %d)\n", verdict, algo, a.cfg.Threshold)
			fmt.Fprintf(w, "   Similarity: %.1f%% (distance: %d)\n", phash.Similarity(dist), dist)
			return nil
		},
	}
}
