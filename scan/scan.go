// Package scan lists a library through a storage provider and hashes its
// images into cluster records.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/luinbytes/media-deduplicator/cluster"
	"github.com/luinbytes/media-deduplicator/phash"
	"github.com/luinbytes/media-deduplicator/storage"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

var videoExts = map[string]bool{
	".mp4": true,
	".mov": true,
	".m4v": true,
	".avi": true,
	".mkv": true,
	".wmv": true,
	".3gp": true,
	".mts": true,
}

// IsImageFile reports whether name has a decodable image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// IsVideoFile reports whether name has a video extension.
func IsVideoFile(name string) bool {
	return videoExts[strings.ToLower(filepath.Ext(name))]
}

// Library is one scanned scope. Records are keyed by the provider file id,
// which for local files is the absolute path.
type Library struct {
	Scope    cluster.Scope
	Files    map[string]storage.FileInfo
	Records  []cluster.Record
	Failures []phash.Failure
	// Videos are listed but never hashed or compared, sorted by id.
	Videos []storage.FileInfo
	// Dropped counts images left unhashed by a cancelled scan.
	Dropped int
}

// RedundantBytes totals the size of the images decisions mark as
// redundant: the space freed by removing every duplicate but the kept one.
func (l *Library) RedundantBytes(decisions []cluster.Decision) int64 {
	var n int64
	for _, d := range decisions {
		if d.Redundant() {
			n += l.Files[d.ID].Size
		}
	}
	return n
}

// Path returns the display path of a record id.
func (l *Library) Path(id string) string {
	if f, ok := l.Files[id]; ok {
		return f.Path
	}
	return id
}

// Scanner hashes libraries with a shared pool.
type Scanner struct {
	pool *phash.Pool
	log  zerolog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// New creates a Scanner.
func New(pool *phash.Pool, opts ...Option) *Scanner {
	s := &Scanner{pool: pool, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan hashes every image under dir. Images that cannot be read end up in
// Failures. On cancellation the partial library is returned with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, p storage.Provider, dir string, scope cluster.Scope) (*Library, error) {
	files, err := p.ListFiles(ctx, dir, true)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	lib := &Library{Scope: scope, Files: make(map[string]storage.FileInfo)}
	var tasks []phash.Task
	for _, f := range files {
		if f.IsDir {
			continue
		}
		if IsVideoFile(f.Name) {
			lib.Files[f.ID] = f
			lib.Videos = append(lib.Videos, f)
			continue
		}
		if !IsImageFile(f.Name) {
			continue
		}
		lib.Files[f.ID] = f
		tasks = append(tasks, phash.Task{
			ID: f.ID,
			Load: func(ctx context.Context) (*phash.Raster, error) {
				return Load(ctx, p, f.ID)
			},
		})
	}
	s.log.Info().
		Str("provider", p.Name()).
		Str("scope", scope.String()).
		Int("images", len(tasks)).
		Int("videos", len(lib.Videos)).
		Int("listed", len(files)).
		Msg("hashing library")

	res, runErr := s.pool.Run(ctx, tasks)
	if res == nil {
		return nil, runErr
	}
	for _, r := range res.Results {
		lib.Records = append(lib.Records, cluster.Record{
			ID:          r.ID,
			Fingerprint: r.Fingerprint,
			Quality:     float64(r.Pixels()),
			Scope:       scope,
		})
	}
	slices.SortFunc(lib.Records, func(a, b cluster.Record) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(res.Failures, func(a, b phash.Failure) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(lib.Videos, func(a, b storage.FileInfo) int { return strings.Compare(a.ID, b.ID) })
	lib.Failures = res.Failures
	lib.Dropped = res.Dropped
	return lib, runErr
}

// Load opens a file through p and decodes it into a raster.
func Load(ctx context.Context, p storage.Provider, id string) (*phash.Raster, error) {
	r, err := p.OpenFile(ctx, id)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	img, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return phash.FromImage(img)
}

// Decode reads an image in any registered format and applies its EXIF
// orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &phash.DecodeError{Reason: "cannot decode image", Err: err}
	}
	return img, nil
}

// HashFile fingerprints a single local image.
func HashFile(path string, algo phash.Algorithm) (phash.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return phash.Fingerprint{}, err
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		var de *phash.DecodeError
		if errors.As(err, &de) {
			de.ID = path
		}
		return phash.Fingerprint{}, err
	}
	r, err := phash.FromImage(img)
	if err != nil {
		return phash.Fingerprint{}, err
	}
	return phash.Compute(r, algo)
}
