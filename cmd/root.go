// Package cmd wires the command line interface.
package cmd

import (
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luinbytes/media-deduplicator/config"
	"github.com/luinbytes/media-deduplicator/journal"
	"github.com/luinbytes/media-deduplicator/logging"
	"github.com/luinbytes/media-deduplicator/phash"
	"github.com/luinbytes/media-deduplicator/tui"
)

const progressInterval = 200 * time.Millisecond

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{v: config.New(), log: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:   "media-deduplicator",
		Short: "Find visually duplicate photos and organize a library with undo",
		Long: `media-deduplicator fingerprints images by what they look like, so resized,
recompressed or re-encoded copies of a photo are recognised as the same picture.

Organize runs are recorded in a crash-safe journal and every session can be
undone later.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default ./"+config.LocalFile+" or ~/.config/media-deduplicator/config.yaml)")
	pf.String("algorithm", "phash", "Perceptual hash: ahash, dhash or phash")
	pf.Int("threshold", phash.ThresholdSimilar, "Maximum Hamming distance for two images to match (0-64)")
	pf.Int("workers", 0, "Hashing workers (0 = one per CPU)")
	pf.String("journal-dir", "", "Directory holding session journals")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "", "Log format: console or json (default console on a terminal)")

	cmd.AddCommand(newScanCmd(a))
	cmd.AddCommand(newOrganizeCmd(a))
	cmd.AddCommand(newCompareCmd(a))
	cmd.AddCommand(newSessionsCmd(a))
	cmd.AddCommand(newUndoCmd(a))
	cmd.AddCommand(newRecoverCmd(a))

	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	opts := cfg.Logger()
	opts.Out = cmd.ErrOrStderr()
	a.log = logging.New(opts)
	if cfg.File != "" {
		a.log.Debug().Str("path", cfg.File).Msg("loaded config")
	}
	return nil
}

func (a *app) openJournal() (*journal.Journal, error) {
	return journal.Open(a.cfg.JournalPath(), journal.WithLogger(a.log))
}

// newPool returns a hash pool that draws a progress bar when errOut is a
// terminal.
func (a *app) newPool(errOut io.Writer, label string) (*phash.Pool, error) {
	opts := []phash.PoolOption{phash.WithLogger(a.log)}
	if logging.IsTerminal(errOut) {
		bar := tui.NewProgress(errOut, label, progressInterval)
		opts = append(opts, phash.WithProgress(bar.Update))
	}
	return phash.NewPool(a.cfg.HashAlgorithm(), a.cfg.WorkerCount(), opts...)
}
