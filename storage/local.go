package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// LocalProvider implements Provider and Mover for the local filesystem
type LocalProvider struct {
	basePath string
}

// NewLocalProvider creates a new local filesystem provider
func NewLocalProvider(basePath string) (*LocalProvider, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &LocalProvider{
		basePath: absPath,
	}, nil
}

// Root is the absolute base path.
func (p *LocalProvider) Root() string { return p.basePath }

// ListFiles lists all files in a directory (optionally recursive). Hidden
// files and directories are skipped.
func (p *LocalProvider) ListFiles(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	fullPath := filepath.Join(p.basePath, path)

	var files []FileInfo

	err := filepath.WalkDir(fullPath, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(p.basePath, filePath)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		// Skip root directory itself
		if filePath == fullPath {
			return nil
		}

		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		files = append(files, FileInfo{
			ID:      filePath, // Use full path as ID
			Name:    d.Name(),
			Path:    relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   d.IsDir(),
		})

		// If not recursive, skip subdirectories
		if !recursive && d.IsDir() {
			return filepath.SkipDir
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}

// OpenFile opens a file for reading
func (p *LocalProvider) OpenFile(ctx context.Context, id string) (Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// DeleteFile deletes a file
func (p *LocalProvider) DeleteFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// MoveFile moves a file to a new location, falling back to copy and remove
// when src and dst are on different filesystems.
func (p *LocalProvider) MoveFile(ctx context.Context, src, dst string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := refuseOverwrite(dst); err != nil {
		return nil, err
	}

	created, err := p.MkdirAll(filepath.Dir(dst))
	if err != nil {
		removeCreated(created)
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	err = os.Rename(src, dst)
	if errors.Is(err, syscall.EXDEV) {
		if err = copyFile(src, dst); err == nil {
			if err = os.Remove(src); err != nil {
				_ = os.Remove(dst)
			}
		}
	}
	if err != nil {
		removeCreated(created)
		return nil, fmt.Errorf("failed to move file: %w", err)
	}

	return created, nil
}

// CopyFile copies a file, syncing the new copy before returning.
func (p *LocalProvider) CopyFile(ctx context.Context, src, dst string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := refuseOverwrite(dst); err != nil {
		return nil, err
	}

	created, err := p.MkdirAll(filepath.Dir(dst))
	if err != nil {
		removeCreated(created)
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		removeCreated(created)
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	return created, nil
}

// MkdirAll creates path and returns the directories that did not exist
// before, outermost first.
func (p *LocalProvider) MkdirAll(path string) ([]string, error) {
	var missing []string
	for dir := filepath.Clean(path); ; {
		if _, err := os.Stat(dir); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		missing = append(missing, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	var created []string
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0755); err != nil && !errors.Is(err, fs.ErrExist) {
			return created, err
		}
		created = append(created, missing[i])
	}
	return created, nil
}

// removeCreated undoes MkdirAll after a failed move or copy, deepest
// directory first. Directories that gained other entries are kept.
func removeCreated(created []string) {
	for i := len(created) - 1; i >= 0; i-- {
		_ = os.Remove(created[i])
	}
}

// RemoveEmptyDir removes path only if it is an empty directory. A missing
// path counts as not removed.
func (p *LocalProvider) RemoveEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether anything is present at path.
func (p *LocalProvider) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Name returns the provider name
func (p *LocalProvider) Name() string {
	return string(ProviderLocal)
}

// Close cleans up provider resources (no-op for local)
func (p *LocalProvider) Close() error {
	return nil
}

func refuseOverwrite(dst string) error {
	_, err := os.Lstat(dst)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// Helper to check if a path component is hidden
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Ensure LocalProvider implements both interfaces
var (
	_ Provider = (*LocalProvider)(nil)
	_ Mover    = (*LocalProvider)(nil)
)
