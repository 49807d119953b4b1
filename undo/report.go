package undo

import (
	"errors"

	"github.com/luinbytes/media-deduplicator/journal"
)

// Result is the outcome of reversing one entry.
type Result string

const (
	Reverted      Result = "REVERTED"
	Failed        Result = "FAILED"
	Unrecoverable Result = "UNRECOVERABLE"
	Skipped       Result = "SKIPPED"
)

// Outcome is the per-entry line of a Report.
type Outcome struct {
	Entry  journal.Entry
	Result Result
	Detail string
	Err    error
}

// Report describes one Undo run. Outcomes are in the order they were
// attempted, highest sequence number first. Status is the outcome of the
// run; it is only persisted when the journal could still be written.
type Report struct {
	SessionID   string
	Outcomes    []Outcome
	RemovedDirs []string
	Status      journal.SessionStatus

	unconfirmed int
	interrupted bool
}

func (r *Report) add(e journal.Entry, res Result, detail string, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Entry: e, Result: res, Detail: detail, Err: err})
}

// Count returns how many entries ended with res.
func (r *Report) Count(res Result) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result == res {
			n++
		}
	}
	return n
}

// Err joins the errors of every failed or unrecoverable entry.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Complete reports whether every executed operation has been reversed.
func (r *Report) Complete() bool {
	return r.Status == journal.SessionUndone
}

func (r *Report) finalStatus() journal.SessionStatus {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return journal.SessionPartiallyUndone
		}
	}
	if r.unconfirmed > 0 || r.interrupted {
		return journal.SessionPartiallyUndone
	}
	return journal.SessionUndone
}
