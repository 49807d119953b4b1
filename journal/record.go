package journal

import (
	"fmt"
	"time"
)

// Op is a journaled file operation.
type Op string

const (
	OpMove   Op = "MOVE"
	OpCopy   Op = "COPY"
	OpDelete Op = "DELETE"
)

func (o Op) valid() bool {
	return o == OpMove || o == OpCopy || o == OpDelete
}

// EntryStatus is the state of one operation.
type EntryStatus string

const (
	// StatusPending is written before the operation is attempted.
	StatusPending EntryStatus = "PENDING"
	// StatusDone is written after the operation verifiably succeeded.
	StatusDone EntryStatus = "DONE"
	// StatusReverted is written by undo once the operation has been reversed.
	StatusReverted EntryStatus = "REVERTED"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionInProgress      SessionStatus = "IN_PROGRESS"
	SessionCompleted       SessionStatus = "COMPLETED"
	SessionAborted         SessionStatus = "ABORTED"
	SessionUndone          SessionStatus = "UNDONE"
	SessionPartiallyUndone SessionStatus = "PARTIALLY_UNDONE"
)

func (s SessionStatus) valid() bool {
	switch s {
	case SessionInProgress, SessionCompleted, SessionAborted, SessionUndone, SessionPartiallyUndone:
		return true
	}
	return false
}

const (
	kindEntry   = "entry"
	kindSession = "session"
)

// record is one line of a session file.
type record struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Op        Op        `json:"op,omitempty"`
	Src       string    `json:"src,omitempty"`
	Dst       string    `json:"dst,omitempty"`
	Status    string    `json:"status"`
	Time      time.Time `json:"ts"`
	Dirs      []string  `json:"dirs,omitempty"`
	Label     string    `json:"label,omitempty"`
}

func (r *record) validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("missing session_id")
	}
	switch r.Kind {
	case kindSession:
		if !SessionStatus(r.Status).valid() {
			return fmt.Errorf("unknown session status %q", r.Status)
		}
	case kindEntry:
		if r.Seq <= 0 {
			return fmt.Errorf("invalid seq %d", r.Seq)
		}
		switch EntryStatus(r.Status) {
		case StatusPending:
			if !r.Op.valid() {
				return fmt.Errorf("unknown op %q", r.Op)
			}
			if r.Src == "" {
				return fmt.Errorf("entry %d has no source path", r.Seq)
			}
			if r.Op != OpDelete && r.Dst == "" {
				return fmt.Errorf("%s entry %d has no destination path", r.Op, r.Seq)
			}
		case StatusDone, StatusReverted:
		default:
			return fmt.Errorf("unknown entry status %q", r.Status)
		}
	default:
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	return nil
}

// Entry is one journaled operation. The value returned by Append is the
// handle passed to Complete.
type Entry struct {
	SessionID string
	Seq       int64
	Op        Op
	Src       string
	// Dst is empty for OpDelete.
	Dst    string
	Status EntryStatus
	// Time is when the entry reached its current status.
	Time time.Time
	// Dirs are the directories the operation created, deepest last.
	Dirs []string
}

// Session is the replayed state of one session file.
type Session struct {
	ID      string
	Label   string
	Status  SessionStatus
	Started time.Time
	Updated time.Time
	// Entries are ordered by sequence number, which is execution order.
	Entries []Entry
	// TornTail is set when a partial last line was discarded.
	TornTail bool
}

// Pending lists entries that were announced but never marked done.
func (s *Session) Pending() []Entry {
	return s.withStatus(StatusPending)
}

// Done lists entries that completed and have not been reverted.
func (s *Session) Done() []Entry {
	return s.withStatus(StatusDone)
}

func (s *Session) withStatus(st EntryStatus) []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Status == st {
			out = append(out, e)
		}
	}
	return out
}

// Counts tallies entries by status.
func (s *Session) Counts() map[EntryStatus]int {
	out := make(map[EntryStatus]int, 3)
	for _, e := range s.Entries {
		out[e.Status]++
	}
	return out
}
