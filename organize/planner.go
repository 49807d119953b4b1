// Package organize turns resolver decisions into journaled file operations:
// novel images are filed under dest/YYYY/MM and duplicates are skipped,
// set aside, copied aside or deleted. Videos are filed by modification time
// without comparison.
package organize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/luinbytes/media-deduplicator/cluster"
	"github.com/luinbytes/media-deduplicator/journal"
	"github.com/luinbytes/media-deduplicator/storage"
)

// DuplicatePolicy says what happens to a redundant source image.
type DuplicatePolicy string

const (
	DuplicatesSkip   DuplicatePolicy = "skip"
	DuplicatesMove   DuplicatePolicy = "move"
	DuplicatesCopy   DuplicatePolicy = "copy"
	DuplicatesDelete DuplicatePolicy = "delete"
)

// ParseDuplicatePolicy reads a --duplicates value.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", DuplicatesSkip:
		return DuplicatesSkip, nil
	case DuplicatesMove, DuplicatesCopy, DuplicatesDelete:
		return p, nil
	}
	return "", fmt.Errorf("unknown duplicates policy %q (want skip, move, copy or delete)", s)
}

// PlanOptions configures Plan.
type PlanOptions struct {
	// Dest is the library root novel images are filed under.
	Dest string
	// DuplicatesDir receives redundant images under DuplicatesMove and
	// DuplicatesCopy. It
	// defaults to Dest/.duplicates, which later scans skip as hidden.
	DuplicatesDir string
	// Copy copies novel images instead of moving them.
	Copy       bool
	Duplicates DuplicatePolicy
}

// Action is one planned operation for a source image. Op is empty when the
// image is left in place.
type Action struct {
	ID     string
	Tag    cluster.Tag
	Op     journal.Op
	Src    string
	Dst    string
	Reason string

	// Set by Executor.Run.
	Seq  int64
	Done bool
	Err  error
}

// Planner picks non-colliding destination paths. Names handed out earlier
// in the same run count as taken, so a dry run shows the real targets.
type Planner struct {
	fs    storage.Mover
	taken map[string]bool
}

// NewPlanner returns a planner checking existing files through fs.
func NewPlanner(fs storage.Mover) *Planner {
	return &Planner{fs: fs, taken: make(map[string]bool)}
}

// Plan builds one Action per decision, in decision order. files supplies
// the modification time used when an image has no EXIF capture date.
func (p *Planner) Plan(decisions []cluster.Decision, files map[string]storage.FileInfo, opts PlanOptions) ([]Action, error) {
	dest, err := opts.dest()
	if err != nil {
		return nil, err
	}
	dupDir := opts.DuplicatesDir
	if dupDir == "" {
		dupDir = filepath.Join(dest, ".duplicates")
	}
	if dupDir, err = filepath.Abs(dupDir); err != nil {
		return nil, err
	}

	actions := make([]Action, 0, len(decisions))
	for _, d := range decisions {
		a := Action{ID: d.ID, Tag: d.Tag, Src: d.ID}
		switch d.Tag {
		case cluster.Novel:
			a.Op = journal.OpMove
			if opts.Copy {
				a.Op = journal.OpCopy
			}
			when := CaptureTime(d.ID, files[d.ID].ModTime)
			if a.Dst, err = p.Target(dest, when, filepath.Base(d.ID)); err != nil {
				return nil, err
			}
			a.Reason = "new to library"
		default:
			a.Reason = "duplicate of " + d.Kept
			if d.Tag == cluster.RedundantDestination {
				a.Reason = "already in library as " + d.Match
			}
			switch opts.Duplicates {
			case DuplicatesMove, DuplicatesCopy:
				a.Op = journal.OpMove
				if opts.Duplicates == DuplicatesCopy {
					a.Op = journal.OpCopy
				}
				if a.Dst, err = p.Unique(dupDir, filepath.Base(d.ID)); err != nil {
					return nil, err
				}
			case DuplicatesDelete:
				a.Op = journal.OpDelete
			}
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// PlanVideos files videos under dest/YYYY/MM by modification time. Videos
// are never compared, so each one is moved (or copied) like a new image.
func (p *Planner) PlanVideos(videos []storage.FileInfo, opts PlanOptions) ([]Action, error) {
	dest, err := opts.dest()
	if err != nil {
		return nil, err
	}
	op := journal.OpMove
	if opts.Copy {
		op = journal.OpCopy
	}
	actions := make([]Action, 0, len(videos))
	for _, v := range videos {
		dst, err := p.Target(dest, v.ModTime, filepath.Base(v.ID))
		if err != nil {
			return nil, err
		}
		actions = append(actions, Action{ID: v.ID, Tag: cluster.Novel, Op: op, Src: v.ID, Dst: dst, Reason: "video"})
	}
	return actions, nil
}

func (o PlanOptions) dest() (string, error) {
	if o.Dest == "" {
		return "", fmt.Errorf("no destination set")
	}
	return filepath.Abs(o.Dest)
}

// Target returns root/YYYY/MM/name, renamed if that path is taken.
func (p *Planner) Target(root string, when time.Time, name string) (string, error) {
	return p.Unique(filepath.Join(root, when.Format("2006"), when.Format("01")), name)
}

// Unique returns dir/name, or dir/<stem>_<n><ext> with the smallest free n.
func (p *Planner) Unique(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		if !p.taken[candidate] {
			exists, err := p.fs.Exists(candidate)
			if err != nil {
				return "", err
			}
			if !exists {
				p.taken[candidate] = true
				return candidate, nil
			}
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}

// CaptureTime returns the EXIF capture date of a local image, or fallback
// when the file has none.
func CaptureTime(path string, fallback time.Time) time.Time {
	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return fallback
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return fallback
	}
	return t
}
