package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrCorrupt is returned when a session file is damaged somewhere other than
// its last line.
var ErrCorrupt = errors.New("journal corrupt")

// replay rebuilds a session from its file contents. A record only counts once
// its terminating newline is on disk, so a final line without one, or a final
// line that does not parse, is a torn write and is dropped. validEnd is the
// byte offset just past the last committed record.
func replay(r io.Reader, id string) (s *Session, validEnd int64, err error) {
	s = &Session{ID: id, Status: SessionInProgress}
	if t, ok := sessionTime(id); ok {
		s.Started = t
		s.Updated = t
	}

	br := bufio.NewReader(r)
	var (
		off    int64
		lineNo int
		header bool
	)
	for {
		line, rerr := br.ReadBytes('\n')
		if rerr != nil && rerr != io.EOF {
			return nil, 0, rerr
		}
		if len(line) == 0 {
			break
		}
		lineNo++
		if rerr == io.EOF {
			// no newline: never acknowledged
			s.TornTail = true
			break
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			off += int64(len(line))
			continue
		}

		var rec record
		perr := json.Unmarshal(trimmed, &rec)
		if perr == nil {
			perr = rec.validate()
		}
		if perr != nil {
			if _, peekErr := br.Peek(1); peekErr == io.EOF {
				s.TornTail = true
				break
			}
			return nil, 0, fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, id, lineNo, perr)
		}
		if err := s.apply(&rec, header); err != nil {
			return nil, 0, fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, id, lineNo, err)
		}
		if rec.Kind == kindSession {
			header = true
		}
		off += int64(len(line))
	}
	return s, off, nil
}

func (s *Session) apply(rec *record, seenHeader bool) error {
	if rec.SessionID != s.ID {
		return fmt.Errorf("record belongs to session %q", rec.SessionID)
	}
	if rec.Time.After(s.Updated) {
		s.Updated = rec.Time
	}

	if rec.Kind == kindSession {
		if !seenHeader {
			s.Started = rec.Time
			s.Label = rec.Label
		}
		s.Status = SessionStatus(rec.Status)
		return nil
	}

	switch EntryStatus(rec.Status) {
	case StatusPending:
		if want := int64(len(s.Entries)) + 1; rec.Seq != want {
			return fmt.Errorf("entry seq %d out of order, want %d", rec.Seq, want)
		}
		s.Entries = append(s.Entries, Entry{
			SessionID: s.ID,
			Seq:       rec.Seq,
			Op:        rec.Op,
			Src:       rec.Src,
			Dst:       rec.Dst,
			Status:    StatusPending,
			Time:      rec.Time,
		})
	case StatusDone:
		e, err := s.entry(rec.Seq)
		if err != nil {
			return err
		}
		if e.Status != StatusPending {
			return fmt.Errorf("entry %d marked DONE from %s", rec.Seq, e.Status)
		}
		e.Status = StatusDone
		e.Time = rec.Time
		e.Dirs = rec.Dirs
	case StatusReverted:
		e, err := s.entry(rec.Seq)
		if err != nil {
			return err
		}
		if e.Status != StatusDone {
			return fmt.Errorf("entry %d marked REVERTED from %s", rec.Seq, e.Status)
		}
		e.Status = StatusReverted
		e.Time = rec.Time
	}
	return nil
}

func (s *Session) entry(seq int64) (*Entry, error) {
	if seq < 1 || seq > int64(len(s.Entries)) {
		return nil, fmt.Errorf("entry %d has no PENDING record", seq)
	}
	return &s.Entries[seq-1], nil
}

// sessionTime recovers the start time encoded in a session id.
func sessionTime(id string) (time.Time, bool) {
	if len(id) < len(idTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(idTimeLayout, id[:len(idTimeLayout)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
