// Package undo reverses the file operations recorded in a journal session.
package undo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/luinbytes/media-deduplicator/journal"
	"github.com/luinbytes/media-deduplicator/storage"
)

// ErrUnrecoverable marks an entry that has no recovery point, such as a
// permanent delete.
var ErrUnrecoverable = errors.New("operation cannot be undone")

// TrashLocator finds the recoverable copy of a deleted file.
type TrashLocator interface {
	Locate(ctx context.Context, e journal.Entry) (path string, ok bool, err error)
}

// Manager lists and reverses sessions. It must not run while an organize
// session is writing to the same files.
type Manager struct {
	journal *journal.Journal
	fs      storage.Mover
	trash   TrashLocator
	log     zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTrash lets DELETE entries be restored from a trash location.
func WithTrash(t TrashLocator) Option {
	return func(m *Manager) { m.trash = t }
}

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// New creates a Manager.
func New(j *journal.Journal, fs storage.Mover, opts ...Option) *Manager {
	m := &Manager{journal: j, fs: fs, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListSessions returns every session, most recent first.
func (m *Manager) ListSessions() ([]*journal.Session, error) {
	return m.journal.Sessions()
}

// Preview lists the entries Undo would reverse, in the order it would
// reverse them.
func (m *Manager) Preview(sessionID string) ([]journal.Entry, error) {
	s, err := m.journal.Load(sessionID)
	if err != nil {
		return nil, err
	}
	done := s.Done()
	slices.Reverse(done)
	return done, nil
}

// Undo reverses every DONE entry of the session from the last to the first,
// then removes directories the session created that are now empty. A failed
// entry does not stop the others. Reversed entries are journaled as
// REVERTED, so running Undo again only retries what failed.
func (m *Manager) Undo(ctx context.Context, sessionID string) (*Report, error) {
	sess, err := m.journal.Resume(sessionID)
	if err != nil {
		return nil, err
	}
	log := m.log.With().Str("session_id", sessionID).Logger()

	rep := &Report{SessionID: sessionID}
	entries := slices.Clone(sess.Entries)
	slices.Reverse(entries)

	var werr error
	for _, e := range entries {
		if werr != nil {
			rep.add(e, Skipped, "journal unavailable", nil)
			rep.interrupted = true
			continue
		}
		if ctx.Err() != nil {
			rep.add(e, Skipped, "cancelled", nil)
			rep.interrupted = true
			continue
		}
		switch e.Status {
		case journal.StatusReverted:
			rep.add(e, Skipped, "already reverted", nil)
			continue
		case journal.StatusPending:
			rep.add(e, Skipped, "never confirmed", nil)
			rep.unconfirmed++
			continue
		}

		detail, err := m.reverse(ctx, e)
		if err != nil {
			res := Failed
			if errors.Is(err, ErrUnrecoverable) {
				res = Unrecoverable
			}
			log.Warn().Err(err).Int64("seq", e.Seq).Str("path", e.Src).Str("op", string(e.Op)).Msg("could not undo entry")
			rep.add(e, res, detail, err)
			continue
		}

		if err := m.journal.MarkReverted(e); err != nil {
			// The file is back but the journal cannot say so.
			werr = err
			rep.add(e, Reverted, detail, err)
			continue
		}
		rep.add(e, Reverted, detail, nil)
		log.Debug().Int64("seq", e.Seq).Str("op", string(e.Op)).Str("path", e.Src).Msg("entry reverted")
	}

	rep.RemovedDirs = m.removeCreatedDirs(sess, rep, log)
	rep.Status = rep.finalStatus()

	if werr != nil {
		// No status can be written. The session keeps its previous status
		// on disk and the entries marked REVERTED so far.
		if err := m.journal.Release(sessionID); err != nil {
			werr = errors.Join(werr, err)
		}
		return rep, werr
	}
	if err := m.journal.CloseSession(sessionID, rep.Status); err != nil {
		return rep, err
	}
	log.Info().
		Int("reverted", rep.Count(Reverted)).
		Int("failed", rep.Count(Failed)).
		Int("unrecoverable", rep.Count(Unrecoverable)).
		Str("status", string(rep.Status)).
		Msg("undo finished")

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (m *Manager) reverse(ctx context.Context, e journal.Entry) (string, error) {
	switch e.Op {
	case journal.OpMove:
		if ok, err := m.fs.Exists(e.Src); err != nil {
			return "", err
		} else if ok {
			return "source path is occupied", fmt.Errorf("%w: %s", storage.ErrExists, e.Src)
		}
		if _, err := m.fs.MoveFile(ctx, e.Dst, e.Src); err != nil {
			return "move back failed", err
		}
		return "moved back", nil

	case journal.OpCopy:
		ok, err := m.fs.Exists(e.Dst)
		if err != nil {
			return "", err
		}
		if !ok {
			return "copy already removed", nil
		}
		if err := m.fs.DeleteFile(ctx, e.Dst); err != nil {
			return "remove copy failed", err
		}
		return "copy removed", nil

	case journal.OpDelete:
		if m.trash == nil {
			return "no recovery point", fmt.Errorf("%w: %s was deleted permanently", ErrUnrecoverable, e.Src)
		}
		from, ok, err := m.trash.Locate(ctx, e)
		if err != nil {
			return "trash lookup failed", err
		}
		if !ok {
			return "not found in trash", fmt.Errorf("%w: %s is not in the trash", ErrUnrecoverable, e.Src)
		}
		if _, err := m.fs.MoveFile(ctx, from, e.Src); err != nil {
			return "restore failed", err
		}
		return "restored from trash", nil
	}
	return "", fmt.Errorf("unknown op %q", e.Op)
}

// removeCreatedDirs removes, deepest first, the directories recorded by
// entries that are now reverted, if they are empty.
func (m *Manager) removeCreatedDirs(sess *journal.Session, rep *Report, log zerolog.Logger) []string {
	reverted := make(map[int64]bool)
	for _, o := range rep.Outcomes {
		if o.Result == Reverted {
			reverted[o.Entry.Seq] = true
		}
	}
	seen := make(map[string]bool)
	var dirs []string
	for _, e := range sess.Entries {
		if !reverted[e.Seq] && e.Status != journal.StatusReverted {
			continue
		}
		for _, d := range e.Dirs {
			if !seen[d] {
				seen[d] = true
				dirs = append(dirs, d)
			}
		}
	}
	slices.SortFunc(dirs, func(a, b string) int {
		return cmp.Or(cmp.Compare(depth(b), depth(a)), strings.Compare(b, a))
	})

	var removed []string
	for _, d := range dirs {
		ok, err := m.fs.RemoveEmptyDir(d)
		if err != nil {
			log.Warn().Err(err).Str("path", d).Msg("could not remove directory")
			continue
		}
		if ok {
			removed = append(removed, d)
		}
	}
	return removed
}

func depth(p string) int {
	return strings.Count(filepath.Clean(p), string(filepath.Separator))
}
