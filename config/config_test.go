package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/media-deduplicator/phash"
)

// isolate keeps the developer's own config files out of the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, "phash", cfg.Algorithm)
	assert.Equal(t, phash.PHash, cfg.HashAlgorithm())
	assert.Equal(t, 10, cfg.Threshold)
	assert.Equal(t, runtime.NumCPU(), cfg.WorkerCount())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(home, ".local", "share", "media-deduplicator", "journal"), cfg.JournalPath())
	assert.Equal(t, filepath.Join(home, ".config", "media-deduplicator", "token.json"), cfg.Drive().TokenFile)
}

func TestFileSearchOrder(t *testing.T) {
	home := isolate(t)
	global := filepath.Join(home, ".config", "media-deduplicator", "config.yaml")
	writeConfig(t, global, "threshold: 7\n")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, global, cfg.File)
	assert.Equal(t, 7, cfg.Threshold)

	writeConfig(t, LocalFile, "threshold: 3\nalgorithm: dhash\n")
	cfg, err = Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, LocalFile, cfg.File)
	assert.Equal(t, 3, cfg.Threshold)
	assert.Equal(t, phash.DHash, cfg.HashAlgorithm())

	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	writeConfig(t, explicit, "threshold: 12\ngoogle_drive:\n  token_file: /tmp/tok.json\n")
	cfg, err = Load(New(), explicit)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Threshold)
	assert.Equal(t, "/tmp/tok.json", cfg.Drive().TokenFile)
}

func TestExplicitFileMustExist(t *testing.T) {
	isolate(t)
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPrecedence(t *testing.T) {
	isolate(t)
	writeConfig(t, LocalFile, "threshold: 3\nworkers: 2\nlog_level: warn\n")
	t.Setenv("MEDIADEDUP_THRESHOLD", "5")
	t.Setenv("MEDIADEDUP_GOOGLE_DRIVE_CREDENTIALS_FILE", "/etc/creds.json")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("threshold", 10, "")
	fs.Int("workers", 0, "")
	fs.String("log-level", "info", "")
	require.NoError(t, fs.Parse([]string{"--workers", "6"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Threshold, "env beats file")
	assert.Equal(t, 6, cfg.Workers, "flag beats file")
	assert.Equal(t, "warn", cfg.LogLevel, "unset flag does not beat file")
	assert.Equal(t, "/etc/creds.json", cfg.Drive().CredentialsFile)
}

func TestValidate(t *testing.T) {
	valid := Config{Algorithm: "phash", Threshold: 10}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown algorithm", func(c *Config) { c.Algorithm = "md5" }},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }},
		{"threshold too large", func(c *Config) { c.Threshold = 65 }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := valid
	c.Algorithm = "sha256"
	assert.ErrorIs(t, c.Validate(), phash.ErrUnsupportedAlgorithm)

	c = valid
	c.Threshold = 64
	assert.NoError(t, c.Validate())
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	writeConfig(t, LocalFile, "threshold: 99\n")
	_, err := Load(New(), "")
	assert.Error(t, err)
}
