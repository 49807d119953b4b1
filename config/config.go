// Package config loads settings from defaults, a YAML file, the environment
// and command flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luinbytes/media-deduplicator/logging"
	"github.com/luinbytes/media-deduplicator/phash"
	"github.com/luinbytes/media-deduplicator/storage"
)

// EnvPrefix is prepended to every environment variable, so threshold is
// read from MEDIADEDUP_THRESHOLD and google_drive.token_file from
// MEDIADEDUP_GOOGLE_DRIVE_TOKEN_FILE.
const EnvPrefix = "MEDIADEDUP"

// LocalFile is the per-directory config file.
const LocalFile = ".mediadedup.yaml"

// Config holds application configuration.
type Config struct {
	Algorithm   string            `mapstructure:"algorithm"`
	Threshold   int               `mapstructure:"threshold"`
	Workers     int               `mapstructure:"workers"`
	JournalDir  string            `mapstructure:"journal_dir"`
	LogLevel    string            `mapstructure:"log_level"`
	LogFormat   string            `mapstructure:"log_format"`
	GoogleDrive GoogleDriveConfig `mapstructure:"google_drive"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// GoogleDriveConfig holds the OAuth files for a gdrive: destination.
type GoogleDriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

// flagKeys maps command flag names to config keys.
var flagKeys = map[string]string{
	"algorithm":   "algorithm",
	"threshold":   "threshold",
	"workers":     "workers",
	"journal-dir": "journal_dir",
	"log-level":   "log_level",
	"log-format":  "log_format",
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("algorithm", phash.PHash.String())
	v.SetDefault("threshold", phash.ThresholdSimilar)
	v.SetDefault("workers", 0)
	v.SetDefault("journal_dir", filepath.Join("~", ".local", "share", "media-deduplicator", "journal"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "")
	v.SetDefault("google_drive.credentials_file", filepath.Join("~", ".config", "media-deduplicator", "credentials.json"))
	v.SetDefault("google_drive.token_file", filepath.Join("~", ".config", "media-deduplicator", "token.json"))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags makes any of the known flags present in fs override the other
// sources when set on the command line.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file and returns the merged, validated settings.
// Precedence for the file: explicit path > ./.mediadedup.yaml >
// ~/.config/media-deduplicator/config.yaml. Only an explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	file := path
	if file == "" {
		file = findConfigFile()
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func findConfigFile() string {
	if _, err := os.Stat(LocalFile); err == nil {
		return LocalFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	global := filepath.Join(home, ".config", "media-deduplicator", "config.yaml")
	if _, err := os.Stat(global); err == nil {
		return global
	}
	return ""
}

// Validate checks the ranges the hashing and clustering stages accept.
func (c *Config) Validate() error {
	var errs []error
	if _, err := phash.ParseAlgorithm(c.Algorithm); err != nil {
		errs = append(errs, err)
	}
	if c.Threshold < 0 || c.Threshold > phash.Bits {
		errs = append(errs, fmt.Errorf("threshold %d is outside 0..%d", c.Threshold, phash.Bits))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HashAlgorithm returns the parsed algorithm. Call Validate first.
func (c *Config) HashAlgorithm() phash.Algorithm {
	a, _ := phash.ParseAlgorithm(c.Algorithm)
	return a
}

// WorkerCount resolves workers=0 to the number of CPUs.
func (c *Config) WorkerCount() int {
	if c.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

// JournalPath is JournalDir with a leading ~ expanded.
func (c *Config) JournalPath() string {
	return expandHome(c.JournalDir)
}

// Drive returns the storage settings for Google Drive locations.
func (c *Config) Drive() storage.GoogleDriveConfig {
	return storage.GoogleDriveConfig{
		CredentialsFile: expandHome(c.GoogleDrive.CredentialsFile),
		TokenFile:       expandHome(c.GoogleDrive.TokenFile),
	}
}

// Logger returns the logging options for this config.
func (c *Config) Logger() logging.Options {
	f, _ := logging.ParseFormat(c.LogFormat)
	return logging.Options{Level: c.LogLevel, Format: f}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[1:])
	}
	return p
}
