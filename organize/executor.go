package organize

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/luinbytes/media-deduplicator/journal"
	"github.com/luinbytes/media-deduplicator/storage"
)

// Result describes one organize run.
type Result struct {
	// SessionID is empty for a dry run.
	SessionID string
	Actions   []Action
	Status    journal.SessionStatus
	DryRun    bool
}

// Count returns how many actions of op finished.
func (r *Result) Count(op journal.Op) int {
	n := 0
	for _, a := range r.Actions {
		if a.Op == op && a.Done {
			n++
		}
	}
	return n
}

// Failed returns the actions whose file operation failed.
func (r *Result) Failed() []Action {
	var out []Action
	for _, a := range r.Actions {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Skipped counts images left in place.
func (r *Result) Skipped() int {
	n := 0
	for _, a := range r.Actions {
		if a.Op == "" {
			n++
		}
	}
	return n
}

// Executor performs planned actions inside one journal session.
type Executor struct {
	journal  *journal.Journal
	fs       storage.Mover
	log      zerolog.Logger
	progress func(done, total int)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithProgress registers a callback run after each attempted operation.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Executor) { e.progress = fn }
}

// NewExecutor creates an Executor.
func NewExecutor(j *journal.Journal, fs storage.Mover, opts ...Option) *Executor {
	e := &Executor{journal: j, fs: fs, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes actions in order. Every operation is journaled PENDING before
// it is attempted and DONE after it succeeded. A failed file operation is
// recorded on its action and the run goes on; a journal failure or
// cancellation stops the run and closes the session ABORTED.
func (e *Executor) Run(ctx context.Context, label string, actions []Action, dryRun bool) (*Result, error) {
	res := &Result{Actions: actions, DryRun: dryRun}
	if dryRun {
		return res, nil
	}

	sid, err := e.journal.BeginSession(label)
	if err != nil {
		return res, err
	}
	res.SessionID = sid
	log := e.log.With().Str("session_id", sid).Logger()

	total := 0
	for _, a := range actions {
		if a.Op != "" {
			total++
		}
	}

	done := 0
	for i := range res.Actions {
		a := &res.Actions[i]
		if a.Op == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, e.abort(res, err)
		}

		entry, err := e.journal.Append(sid, a.Op, a.Src, a.Dst)
		if err != nil {
			return res, e.abort(res, err)
		}
		a.Seq = entry.Seq

		created, err := e.perform(ctx, a)
		if err != nil {
			a.Err = err
			log.Warn().Err(err).Str("path", a.Src).Str("op", string(a.Op)).Int64("seq", a.Seq).Msg("operation failed")
		} else {
			if err := e.journal.Complete(entry, created...); err != nil {
				// The file operation happened; the entry stays PENDING
				// and recover reports it as likely executed.
				a.Done = true
				return res, e.abort(res, err)
			}
			a.Done = true
			log.Debug().Str("path", a.Src).Str("dst", a.Dst).Str("op", string(a.Op)).Msg("operation done")
		}

		done++
		if e.progress != nil {
			e.progress(done, total)
		}
	}

	if err := e.journal.CloseSession(sid, journal.SessionCompleted); err != nil {
		return res, err
	}
	res.Status = journal.SessionCompleted
	log.Info().
		Int("moved", res.Count(journal.OpMove)).
		Int("copied", res.Count(journal.OpCopy)).
		Int("deleted", res.Count(journal.OpDelete)).
		Int("skipped", res.Skipped()).
		Int("failed", len(res.Failed())).
		Msg("organize finished")
	return res, nil
}

func (e *Executor) perform(ctx context.Context, a *Action) ([]string, error) {
	switch a.Op {
	case journal.OpMove:
		return e.fs.MoveFile(ctx, a.Src, a.Dst)
	case journal.OpCopy:
		return e.fs.CopyFile(ctx, a.Src, a.Dst)
	case journal.OpDelete:
		return nil, e.fs.DeleteFile(ctx, a.Src)
	}
	return nil, fmt.Errorf("unknown op %q", a.Op)
}

func (e *Executor) abort(res *Result, cause error) error {
	res.Status = journal.SessionAborted
	if err := e.journal.CloseSession(res.SessionID, journal.SessionAborted); err != nil {
		e.log.Error().Err(err).Str("session_id", res.SessionID).Msg("could not mark session aborted")
		return errors.Join(cause, err)
	}
	e.log.Warn().Err(cause).Str("session_id", res.SessionID).Msg("organize aborted")
	return cause
}
