package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances one second per call so session ordering is stable.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "journal")
	clock := &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	j, err := Open(dir, WithClock(clock.now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, dir
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func appendRaw(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestSessionLifecycle(t *testing.T) {
	j, _ := newJournal(t)

	id, err := j.BeginSession("organize")
	require.NoError(t, err)

	e1, err := j.Append(id, OpMove, "src/x.jpg", "dst/2024/01/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, StatusPending, e1.Status)
	require.NoError(t, j.Complete(e1, "dst/2024", "dst/2024/01"))

	e2, err := j.Append(id, OpCopy, "src/y.jpg", "dst/2024/01/y.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Seq)

	require.NoError(t, j.CloseSession(id, SessionCompleted))

	s, err := j.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, "organize", s.Label)
	assert.Equal(t, SessionCompleted, s.Status)
	assert.False(t, s.TornTail)
	require.Len(t, s.Entries, 2)

	assert.Equal(t, StatusDone, s.Entries[0].Status)
	assert.Equal(t, []string{"dst/2024", "dst/2024/01"}, s.Entries[0].Dirs)
	assert.Equal(t, StatusPending, s.Entries[1].Status)
	assert.Equal(t, OpCopy, s.Entries[1].Op)
	assert.Len(t, s.Done(), 1)
	assert.Len(t, s.Pending(), 1)
	assert.Equal(t, map[EntryStatus]int{StatusDone: 1, StatusPending: 1}, s.Counts())
	assert.True(t, s.Updated.After(s.Started))
}

func TestPersistedFormat(t *testing.T) {
	j, dir := newJournal(t)
	id, err := j.BeginSession("organize")
	require.NoError(t, err)
	e, err := j.Append(id, OpMove, "/in/a.jpg", "/out/2023/07/a.jpg")
	require.NoError(t, err)
	require.NoError(t, j.Complete(e, "/out/2023/07"))

	// Records are on disk before CloseSession.
	lines := readLines(t, filepath.Join(dir, id+".jsonl"))
	require.Len(t, lines, 3)

	assert.Equal(t, "session", lines[0]["kind"])
	assert.Equal(t, "IN_PROGRESS", lines[0]["status"])
	assert.Equal(t, id, lines[0]["session_id"])

	assert.Equal(t, "entry", lines[1]["kind"])
	assert.Equal(t, float64(1), lines[1]["seq"])
	assert.Equal(t, "MOVE", lines[1]["op"])
	assert.Equal(t, "/in/a.jpg", lines[1]["src"])
	assert.Equal(t, "/out/2023/07/a.jpg", lines[1]["dst"])
	assert.Equal(t, "PENDING", lines[1]["status"])
	assert.NotEmpty(t, lines[1]["ts"])

	assert.Equal(t, float64(1), lines[2]["seq"])
	assert.Equal(t, "DONE", lines[2]["status"])
	assert.Equal(t, []any{"/out/2023/07"}, lines[2]["dirs"])
}

func TestSessionIDFormat(t *testing.T) {
	j, _ := newJournal(t)
	id, err := j.BeginSession("")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{8}$`), id)

	ts, ok := sessionTime(id)
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
}

func TestAppendValidation(t *testing.T) {
	j, _ := newJournal(t)
	id, err := j.BeginSession("organize")
	require.NoError(t, err)

	_, err = j.Append(id, Op("RENAME"), "a", "b")
	assert.Error(t, err)
	_, err = j.Append(id, OpMove, "a", "")
	assert.Error(t, err)
	_, err = j.Append(id, OpCopy, "", "b")
	assert.Error(t, err)

	e, err := j.Append(id, OpDelete, "a.jpg", "ignored")
	require.NoError(t, err)
	assert.Empty(t, e.Dst)
	assert.Equal(t, int64(1), e.Seq, "rejected appends must not consume sequence numbers")
}

func TestCompleteTransitions(t *testing.T) {
	j, _ := newJournal(t)
	id, err := j.BeginSession("organize")
	require.NoError(t, err)
	e, err := j.Append(id, OpMove, "a", "b")
	require.NoError(t, err)

	assert.Error(t, j.MarkReverted(e), "cannot revert a pending entry")
	require.NoError(t, j.Complete(e))
	assert.Error(t, j.Complete(e), "cannot complete twice")
	require.NoError(t, j.MarkReverted(e))
	assert.Error(t, j.MarkReverted(e))

	bogus := e
	bogus.Seq = 99
	assert.Error(t, j.Complete(bogus))
}

func TestUnknownAndClosedSessions(t *testing.T) {
	j, _ := newJournal(t)

	_, err := j.Append("20240101-000000-deadbeef", OpMove, "a", "b")
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = j.Load("20240101-000000-deadbeef")
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = j.Resume("20240101-000000-deadbeef")
	assert.ErrorIs(t, err, ErrUnknownSession)

	id, err := j.BeginSession("organize")
	require.NoError(t, err)
	require.NoError(t, j.CloseSession(id, SessionCompleted))

	_, err = j.Append(id, OpMove, "a", "b")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, j.CloseSession(id, SessionAborted), ErrSessionClosed)
	assert.Error(t, j.CloseSession(id, SessionInProgress))
}

func TestReleaseKeepsStatus(t *testing.T) {
	j, _ := newJournal(t)
	id, err := j.BeginSession("organize")
	require.NoError(t, err)
	e, err := j.Append(id, OpMove, "a.jpg", "b/a.jpg")
	require.NoError(t, err)
	require.NoError(t, j.Complete(e))
	require.NoError(t, j.CloseSession(id, SessionCompleted))

	_, err = j.Resume(id)
	require.NoError(t, err)
	require.NoError(t, j.MarkReverted(e))
	require.NoError(t, j.Release(id))
	require.NoError(t, j.Release(id))

	_, err = j.Append(id, OpMove, "c.jpg", "b/c.jpg")
	assert.ErrorIs(t, err, ErrUnknownSession)

	loaded, err := j.Load(id)
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, loaded.Status)
	assert.Equal(t, StatusReverted, loaded.Entries[0].Status)

	_, err = j.Resume(id)
	require.NoError(t, err, "a released session can be resumed")
}

func TestWriteErrorFailsOnlyThatSession(t *testing.T) {
	j, _ := newJournal(t)
	bad, err := j.BeginSession("organize")
	require.NoError(t, err)
	good, err := j.BeginSession("compress")
	require.NoError(t, err)

	e, err := j.Append(bad, OpMove, "a.jpg", "b/a.jpg")
	require.NoError(t, err)
	require.NoError(t, j.Complete(e))

	// Simulate the disk going away underneath the session.
	s, err := j.open(bad)
	require.NoError(t, err)
	require.NoError(t, s.f.Close())

	_, err = j.Append(bad, OpMove, "c.jpg", "b/c.jpg")
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, bad, werr.SessionID)
	assert.Equal(t, int64(2), werr.Seq)
	assert.Contains(t, werr.Error(), bad)

	_, err = j.Append(bad, OpMove, "d.jpg", "b/d.jpg")
	assert.ErrorIs(t, err, ErrSessionFailed)
	assert.ErrorIs(t, j.CloseSession(bad, SessionCompleted), ErrSessionFailed)
	// ABORTED is attempted but the file is gone.
	assert.ErrorAs(t, j.CloseSession(bad, SessionAborted), &werr)

	// The other session keeps working.
	e, err = j.Append(good, OpCopy, "x.jpg", "y/x.jpg")
	require.NoError(t, err)
	require.NoError(t, j.Complete(e))
	require.NoError(t, j.CloseSession(good, SessionCompleted))

	// Records written before the failure are still valid.
	loaded, err := j.Load(bad)
	require.NoError(t, err)
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, StatusDone, loaded.Entries[0].Status)
	assert.Equal(t, SessionInProgress, loaded.Status)
}

func TestTornTail(t *testing.T) {
	j, dir := newJournal(t)
	id, err := j.BeginSession("organize")
	require.NoError(t, err)
	e, err := j.Append(id, OpMove, "a.jpg", "out/a.jpg")
	require.NoError(t, err)
	require.NoError(t, j.Complete(e))
	require.NoError(t, j.Close())

	path := filepath.Join(dir, id+".jsonl")
	appendRaw(t, path, `{"kind":"entry","session_id":"`+id+`","seq":2,"op":"MO`)

	s, err := j.Load(id)
	require.NoError(t, err)
	assert.True(t, s.TornTail)
	require.Len(t, s.Entries, 1)

	// Resuming cuts the partial line and continues the sequence.
	_, err = j.Resume(id)
	require.NoError(t, err)
	e2, err := j.Append(id, OpMove, "b.jpg", "out/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Seq)
	require.NoError(t, j.CloseSession(id, SessionAborted))

	s, err = j.Load(id)
	require.NoError(t, err)
	assert.False(t, s.TornTail)
	assert.Len(t, s.Entries, 2)
	assert.Equal(t, SessionAborted, s.Status)
	assert.Len(t, readLines(t, path), 5)
}

func TestGarbledLastLine(t *testing.T) {
	j, dir := newJournal(t)
	id, err := j.BeginSession("organize")
	require.NoError(t, err)
	_, err = j.Append(id, OpCopy, "a.jpg", "out/a.jpg")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	appendRaw(t, filepath.Join(dir, id+".jsonl"), "\x00\x00\x00garbage\n")
	s, err := j.Load(id)
	require.NoError(t, err)
	assert.True(t, s.TornTail)
	assert.Len(t, s.Entries, 1)
}

func TestCorruption(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"garbage in the middle", []string{
			`{"kind":"session","session_id":"%[1]s","seq":0,"status":"IN_PROGRESS","ts":"2024-01-15T10:00:00Z"}`,
			`not json`,
			`{"kind":"entry","session_id":"%[1]s","seq":1,"op":"MOVE","src":"a","dst":"b","status":"PENDING","ts":"2024-01-15T10:00:01Z"}`,
		}},
		{"done without pending", []string{
			`{"kind":"session","session_id":"%[1]s","seq":0,"status":"IN_PROGRESS","ts":"2024-01-15T10:00:00Z"}`,
			`{"kind":"entry","session_id":"%[1]s","seq":1,"status":"DONE","ts":"2024-01-15T10:00:01Z"}`,
			`{"kind":"session","session_id":"%[1]s","seq":0,"status":"COMPLETED","ts":"2024-01-15T10:00:02Z"}`,
		}},
		{"sequence gap", []string{
			`{"kind":"entry","session_id":"%[1]s","seq":2,"op":"MOVE","src":"a","dst":"b","status":"PENDING","ts":"2024-01-15T10:00:01Z"}`,
			`{"kind":"session","session_id":"%[1]s","seq":0,"status":"COMPLETED","ts":"2024-01-15T10:00:02Z"}`,
		}},
		{"foreign session", []string{
			`{"kind":"session","session_id":"other","seq":0,"status":"IN_PROGRESS","ts":"2024-01-15T10:00:00Z"}`,
			`{"kind":"session","session_id":"%[1]s","seq":0,"status":"COMPLETED","ts":"2024-01-15T10:00:02Z"}`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, dir := newJournal(t)
			id := "20240115-100000-0000abcd"
			var body string
			for _, l := range tt.lines {
				body += fmt.Sprintf(l, id) + "\n"
			}
			require.NoError(t, os.WriteFile(filepath.Join(dir, id+".jsonl"), []byte(body), 0o644))

			_, err := j.Load(id)
			assert.ErrorIs(t, err, ErrCorrupt)
			_, err = j.Resume(id)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestSessionsMostRecentFirst(t *testing.T) {
	j, dir := newJournal(t)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := j.BeginSession("organize")
		require.NoError(t, err)
		require.NoError(t, j.CloseSession(id, SessionCompleted))
		ids = append(ids, id)
	}
	// Unrelated and unreadable files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20200101-000000-00000000.jsonl"), []byte("junk\n{}\n"), 0o644))

	sessions, err := j.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)
	assert.Equal(t, ids[0], sessions[2].ID)

	latest, err := j.Latest()
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
}

func TestLatestEmpty(t *testing.T) {
	j, _ := newJournal(t)
	_, err := j.Latest()
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestConcurrentSessions(t *testing.T) {
	j, _ := newJournal(t)
	const perSession = 40

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := j.BeginSession(fmt.Sprintf("run-%d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < perSession; k++ {
				e, err := j.Append(id, OpMove, fmt.Sprintf("in/%d.jpg", k), fmt.Sprintf("out/%d.jpg", k))
				if err == nil {
					err = j.Complete(e)
				}
				if err != nil {
					errs <- err
					return
				}
			}
			errs <- j.CloseSession(id, SessionCompleted)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, id := range ids {
		s, err := j.Load(id)
		require.NoError(t, err)
		require.Len(t, s.Entries, perSession)
		for k, e := range s.Entries {
			assert.Equal(t, int64(k+1), e.Seq)
			assert.Equal(t, fmt.Sprintf("in/%d.jpg", k), e.Src)
			assert.Equal(t, StatusDone, e.Status)
		}
	}
}

func TestEmptySessionFile(t *testing.T) {
	j, dir := newJournal(t)
	id := "20240115-100000-00001234"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".jsonl"), nil, 0o644))

	s, err := j.Load(id)
	require.NoError(t, err)
	assert.Equal(t, SessionInProgress, s.Status)
	assert.Empty(t, s.Entries)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), s.Started)
}

func TestInspectCrashEvidence(t *testing.T) {
	root := t.TempDir()
	present := func(name string) string {
		p := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		return p
	}
	absent := func(name string) string { return filepath.Join(root, name) }
	exists := func(p string) (bool, error) {
		_, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	}

	j, _ := newJournal(t)
	id, err := j.BeginSession("organize")
	require.NoError(t, err)

	type step struct {
		op       Op
		src, dst string
		want     Verdict
	}
	steps := []step{
		{OpMove, present("m1-src"), absent("m1-dst"), NotExecuted},
		{OpMove, absent("m2-src"), present("m2-dst"), LikelyExecuted},
		{OpMove, present("m3-src"), present("m3-dst"), Ambiguous},
		{OpMove, absent("m4-src"), absent("m4-dst"), Ambiguous},
		{OpCopy, present("c1-src"), absent("c1-dst"), NotExecuted},
		{OpCopy, present("c2-src"), present("c2-dst"), LikelyExecuted},
		{OpDelete, present("d1-src"), "", NotExecuted},
		{OpDelete, absent("d2-src"), "", LikelyExecuted},
	}
	for _, s := range steps {
		_, err := j.Append(id, s.op, s.src, s.dst)
		require.NoError(t, err)
	}
	// A confirmed entry is not inspected.
	done, err := j.Append(id, OpMove, absent("ok-src"), absent("ok-dst"))
	require.NoError(t, err)
	require.NoError(t, j.Complete(done))
	require.NoError(t, j.Close())

	s, err := j.Load(id)
	require.NoError(t, err)
	findings, err := Inspect(s, exists)
	require.NoError(t, err)
	require.Len(t, findings, len(steps))
	for i, f := range findings {
		assert.Equal(t, steps[i].want, f.Verdict, "entry %d (%s %s)", f.Entry.Seq, f.Entry.Op, f.Reason)
		assert.NotEmpty(t, f.Reason)
	}

	_, err = Inspect(s, func(string) (bool, error) { return false, os.ErrPermission })
	assert.ErrorIs(t, err, os.ErrPermission)
}
