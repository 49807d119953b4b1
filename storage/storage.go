package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// FileInfo represents a file from any storage provider
type FileInfo struct {
	ID       string    // Provider-specific ID (for local: absolute path)
	Name     string    // File name
	Path     string    // Path relative to the listed root
	Size     int64     // File size in bytes
	ModTime  time.Time // Last modified time
	IsDir    bool      // Is directory
	MimeType string    // MIME type (if available)
}

// Reader provides read access to a file
type Reader interface {
	io.ReadCloser
}

// Provider is read access to a library of media files.
type Provider interface {
	// ListFiles lists all files in a directory (optionally recursive)
	ListFiles(ctx context.Context, path string, recursive bool) ([]FileInfo, error)

	// OpenFile opens a file for reading
	OpenFile(ctx context.Context, id string) (Reader, error)

	// Name returns the provider name
	Name() string

	// Close cleans up provider resources
	Close() error
}

// Mover performs the file operations that the journal records. Paths are
// absolute. Operations that create directories report them, outermost
// first, so undo can remove exactly what was created.
type Mover interface {
	// MoveFile renames src to dst. It never overwrites an existing dst.
	MoveFile(ctx context.Context, src, dst string) (created []string, err error)
	// CopyFile copies src to dst. It never overwrites an existing dst.
	CopyFile(ctx context.Context, src, dst string) (created []string, err error)
	// DeleteFile removes a file permanently.
	DeleteFile(ctx context.Context, path string) error
	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) (created []string, err error)
	// RemoveEmptyDir removes path if it is an empty directory.
	RemoveEmptyDir(path string) (removed bool, err error)
	// Exists reports whether anything is present at path.
	Exists(path string) (bool, error)
}

// ErrExists is returned instead of overwriting a file.
var ErrExists = errors.New("destination already exists")

// ProviderType represents the type of storage provider
type ProviderType string

const (
	ProviderLocal       ProviderType = "local"
	ProviderGoogleDrive ProviderType = "google-drive"
)

// gdrivePrefix marks a Google Drive folder in a location string.
const gdrivePrefix = "gdrive:"

// Location is a parsed --source/--dest value.
type Location struct {
	Type ProviderType
	Path string
}

// ParseLocation reads "gdrive:Photos/2023" as a Drive folder and anything
// else as a local path.
func ParseLocation(s string) Location {
	if rest, ok := strings.CutPrefix(s, gdrivePrefix); ok {
		return Location{Type: ProviderGoogleDrive, Path: strings.Trim(rest, "/")}
	}
	return Location{Type: ProviderLocal, Path: s}
}

func (l Location) String() string {
	if l.Type == ProviderGoogleDrive {
		return gdrivePrefix + l.Path
	}
	return l.Path
}

// GoogleDriveConfig holds Google Drive configuration
type GoogleDriveConfig struct {
	CredentialsFile string
	TokenFile       string
}

// Open returns a provider for loc and the path to list within it.
func Open(ctx context.Context, loc Location, gd GoogleDriveConfig) (Provider, string, error) {
	switch loc.Type {
	case ProviderGoogleDrive:
		p, err := NewGoogleDriveProvider(ctx, gd.CredentialsFile, gd.TokenFile)
		if err != nil {
			return nil, "", err
		}
		return p, loc.Path, nil
	default:
		p, err := NewLocalProvider(loc.Path)
		if err != nil {
			return nil, "", err
		}
		return p, "", nil
	}
}
