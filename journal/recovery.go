package journal

import "fmt"

// Verdict classifies a PENDING entry that never got its DONE record.
type Verdict string

const (
	// NotExecuted means the filesystem shows the operation never happened.
	NotExecuted Verdict = "NOT_EXECUTED"
	// LikelyExecuted means the operation ran but the crash hit before Complete.
	LikelyExecuted Verdict = "LIKELY_EXECUTED"
	// Ambiguous means the evidence fits neither outcome, e.g. a half-finished
	// cross-device move left both copies.
	Ambiguous Verdict = "AMBIGUOUS"
)

// Finding is the verdict for one unconfirmed entry.
type Finding struct {
	Entry   Entry
	Verdict Verdict
	Reason  string
}

// ExistsFunc reports whether a path is present on disk.
type ExistsFunc func(path string) (bool, error)

// Inspect checks every PENDING-only entry of s against the filesystem. A
// missing destination with the source still in place is unambiguous
// evidence that the operation never ran.
func Inspect(s *Session, exists ExistsFunc) ([]Finding, error) {
	var out []Finding
	for _, e := range s.Pending() {
		srcOK, err := exists(e.Src)
		if err != nil {
			return nil, fmt.Errorf("inspect %s entry %d: %w", s.ID, e.Seq, err)
		}
		dstOK := false
		if e.Op != OpDelete {
			if dstOK, err = exists(e.Dst); err != nil {
				return nil, fmt.Errorf("inspect %s entry %d: %w", s.ID, e.Seq, err)
			}
		}
		v, reason := classify(e.Op, srcOK, dstOK)
		out = append(out, Finding{Entry: e, Verdict: v, Reason: reason})
	}
	return out, nil
}

func classify(op Op, src, dst bool) (Verdict, string) {
	switch op {
	case OpDelete:
		if src {
			return NotExecuted, "source still present"
		}
		return LikelyExecuted, "source gone"
	case OpCopy:
		switch {
		case !dst && src:
			return NotExecuted, "no copy at destination"
		case dst && src:
			return LikelyExecuted, "copy present at destination"
		default:
			return Ambiguous, "source missing"
		}
	default:
		switch {
		case !dst && src:
			return NotExecuted, "destination absent, source in place"
		case dst && !src:
			return LikelyExecuted, "file found at destination only"
		case dst && src:
			return Ambiguous, "file present at both paths"
		default:
			return Ambiguous, "file present at neither path"
		}
	}
}
