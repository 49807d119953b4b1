// Package journal is the write-ahead log for file operations.
//
// Every session is one JSON-lines file under the journal directory. An
// operation is announced with Append (PENDING) before it runs and confirmed
// with Complete (DONE) after it succeeded. Both return only once the record is
// fsynced. Records are never rewritten; state is rebuilt by replaying the
// file.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	fileExt      = ".jsonl"
	idTimeLayout = "20060102-150405"
)

var (
	// ErrSessionFailed is returned for any write to a session after a
	// WriteError. The session's existing records stay valid.
	ErrSessionFailed = errors.New("session failed after journal write error")
	// ErrUnknownSession is returned for a session id with no file or no open handle.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionClosed is returned for writes to a session that has been closed.
	ErrSessionClosed = errors.New("session closed")
)

// WriteError is a failure to durably persist a record. It is fatal to the
// session it occurred in.
type WriteError struct {
	SessionID string
	Seq       int64
	Op        string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("journal write failed for session %s entry %d (%s): %v", e.SessionID, e.Seq, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Journal owns the session files in one directory. Different sessions may be
// written concurrently; writes within one session are serialized.
type Journal struct {
	dir string
	log zerolog.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	id      string
	f       *os.File
	lastSeq int64
	status  map[int64]EntryStatus
	failed  error
	closed  bool
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the journal logger.
func WithLogger(l zerolog.Logger) Option {
	return func(j *Journal) { j.log = l }
}

// WithClock replaces time.Now for record timestamps and session ids.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open prepares dir for use, creating it if needed.
func Open(dir string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	j := &Journal{
		dir:      dir,
		log:      zerolog.Nop(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Dir is the journal directory.
func (j *Journal) Dir() string { return j.dir }

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, id+fileExt)
}

func (j *Journal) newSessionID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	// bytes 4..7 are the low milliseconds and the sub-millisecond counter,
	// so ids taken within one second still sort in creation order
	return fmt.Sprintf("%s-%x", j.now().UTC().Format(idTimeLayout), u[4:8]), nil
}

// BeginSession creates a new session file and returns its id. label names
// the kind of run, e.g. "organize".
func (j *Journal) BeginSession(label string) (string, error) {
	var (
		id  string
		f   *os.File
		err error
	)
	for attempt := 0; attempt < 3; attempt++ {
		if id, err = j.newSessionID(); err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}
		f, err = os.OpenFile(j.path(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", &WriteError{SessionID: id, Op: "begin", Err: err}
	}

	s := &session{id: id, f: f, status: make(map[int64]EntryStatus)}
	rec := record{Kind: kindSession, SessionID: id, Status: string(SessionInProgress), Time: j.now().UTC(), Label: label}
	if err := s.write(&rec); err != nil {
		f.Close()
		return "", &WriteError{SessionID: id, Op: "begin", Err: err}
	}
	if err := syncDir(j.dir); err != nil {
		j.log.Warn().Err(err).Str("session_id", id).Msg("could not sync journal directory")
	}

	j.mu.Lock()
	j.sessions[id] = s
	j.mu.Unlock()

	j.log.Info().Str("session_id", id).Str("label", label).Msg("session started")
	return id, nil
}

// Resume reopens an existing session for appending, e.g. to record undo
// progress or to close a session left IN_PROGRESS by a crash. A torn last
// line is cut off first.
func (j *Journal) Resume(id string) (*Session, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if s, ok := j.sessions[id]; ok && !s.closed {
		return nil, fmt.Errorf("session %s is already open", id)
	}

	f, err := os.OpenFile(j.path(id), os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return nil, err
	}
	sess, end, err := replay(f, id)
	if err != nil {
		f.Close()
		return nil, err
	}
	if sess.TornTail {
		if err := f.Truncate(end); err != nil {
			f.Close()
			return nil, &WriteError{SessionID: id, Op: "truncate", Err: err}
		}
		j.log.Warn().Str("session_id", id).Int64("offset", end).Msg("discarded torn journal tail")
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	s := &session{id: id, f: f, status: make(map[int64]EntryStatus, len(sess.Entries))}
	for _, e := range sess.Entries {
		s.status[e.Seq] = e.Status
		s.lastSeq = e.Seq
	}
	j.sessions[id] = s
	return sess, nil
}

func (j *Journal) open(id string) (*session, error) {
	j.mu.Lock()
	s, ok := j.sessions[id]
	j.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not open", ErrUnknownSession, id)
	}
	return s, nil
}

// Append durably records the intent to perform op. It must be called before
// the operation is attempted. dst is ignored for OpDelete.
func (j *Journal) Append(sessionID string, op Op, src, dst string) (Entry, error) {
	if !op.valid() {
		return Entry{}, fmt.Errorf("unknown op %q", op)
	}
	if src == "" || (op != OpDelete && dst == "") {
		return Entry{}, fmt.Errorf("%s needs source and destination paths", op)
	}
	if op == OpDelete {
		dst = ""
	}
	s, err := j.open(sessionID)
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return Entry{}, err
	}

	seq := s.lastSeq + 1
	rec := record{Kind: kindEntry, SessionID: sessionID, Seq: seq, Op: op, Src: src, Dst: dst, Status: string(StatusPending), Time: j.now().UTC()}
	if err := s.write(&rec); err != nil {
		return Entry{}, j.fail(s, seq, string(op), err)
	}
	s.lastSeq = seq
	s.status[seq] = StatusPending

	j.log.Debug().Str("session_id", sessionID).Int64("seq", seq).Str("op", string(op)).Str("path", src).Msg("pending")
	return Entry{SessionID: sessionID, Seq: seq, Op: op, Src: src, Dst: dst, Status: StatusPending, Time: rec.Time}, nil
}

// Complete durably marks e as done. createdDirs lists directories the
// operation had to create so undo can remove them again.
func (j *Journal) Complete(e Entry, createdDirs ...string) error {
	return j.transition(e, StatusPending, StatusDone, createdDirs)
}

// MarkReverted records that a done entry has been undone.
func (j *Journal) MarkReverted(e Entry) error {
	return j.transition(e, StatusDone, StatusReverted, nil)
}

func (j *Journal) transition(e Entry, from, to EntryStatus, dirs []string) error {
	s, err := j.open(e.SessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if cur, ok := s.status[e.Seq]; !ok || cur != from {
		return fmt.Errorf("entry %d of %s is %s, not %s", e.Seq, e.SessionID, cur, from)
	}

	rec := record{Kind: kindEntry, SessionID: e.SessionID, Seq: e.Seq, Status: string(to), Time: j.now().UTC(), Dirs: dirs}
	if err := s.write(&rec); err != nil {
		return j.fail(s, e.Seq, string(to), err)
	}
	s.status[e.Seq] = to
	j.log.Debug().Str("session_id", e.SessionID).Int64("seq", e.Seq).Str("status", string(to)).Msg("entry updated")
	return nil
}

// CloseSession writes the final status and releases the file. A session that
// hit a WriteError can still be closed as ABORTED if the disk allows it.
func (j *Journal) CloseSession(id string, status SessionStatus) error {
	if !status.valid() || status == SessionInProgress {
		return fmt.Errorf("cannot close session with status %q", status)
	}
	s, err := j.open(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	if s.failed != nil && status != SessionAborted {
		return fmt.Errorf("%w: %s", ErrSessionFailed, id)
	}

	rec := record{Kind: kindSession, SessionID: id, Status: string(status), Time: j.now().UTC()}
	werr := s.write(&rec)
	cerr := s.f.Close()
	s.closed = true

	if werr != nil {
		return &WriteError{SessionID: id, Op: "close", Err: werr}
	}
	if cerr != nil {
		return &WriteError{SessionID: id, Op: "close", Err: cerr}
	}
	j.log.Info().Str("session_id", id).Str("status", string(status)).Msg("session closed")
	return nil
}

// Release closes the file of an open session without writing a status, so
// the session keeps its previous status on disk and can be resumed again.
// It is a no-op for a session that is not open.
func (j *Journal) Release(id string) error {
	j.mu.Lock()
	s, ok := j.sessions[id]
	delete(j.sessions, id)
	j.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

// Close releases every open session file without writing a final status.
// Their sessions stay IN_PROGRESS on disk.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var errs []error
	for id, s := range j.sessions {
		s.mu.Lock()
		if !s.closed {
			errs = append(errs, s.f.Close())
			s.closed = true
		}
		s.mu.Unlock()
		delete(j.sessions, id)
	}
	return errors.Join(errs...)
}

// Load replays one session from disk.
func (j *Journal) Load(id string) (*Session, error) {
	f, err := os.Open(j.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, _, err := replay(f, id)
	return s, err
}

// Sessions lists every session, most recent first. Unreadable files are
// logged and skipped.
func (j *Journal) Sessions() ([]*Session, error) {
	des, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		s, err := j.Load(id)
		if err != nil {
			j.log.Warn().Err(err).Str("session_id", id).Msg("skipping unreadable session")
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Session) int {
		if c := b.Started.Compare(a.Started); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

// Latest returns the most recent session.
func (j *Journal) Latest() (*Session, error) {
	all, err := j.Sessions()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: journal %s is empty", ErrUnknownSession, j.dir)
	}
	return all[0], nil
}

func (s *session) usable() error {
	if s.closed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.id)
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %s", ErrSessionFailed, s.id)
	}
	return nil
}

func (j *Journal) fail(s *session, seq int64, op string, err error) error {
	werr := &WriteError{SessionID: s.id, Seq: seq, Op: op, Err: err}
	s.failed = werr
	j.log.Error().Err(err).Str("session_id", s.id).Int64("seq", seq).Msg("journal write failed, session aborted")
	return werr
}

// write appends one line and fsyncs it.
func (s *session) write(rec *record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.f.Write(b); err != nil {
		return err
	}
	return s.f.Sync()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
