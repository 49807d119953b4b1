package cluster

import (
	"fmt"
	"slices"
	"strings"
)

// Tag is the resolver's verdict for one source record.
type Tag int

const (
	// Novel records have no equivalent anywhere and should be imported.
	Novel Tag = iota
	// RedundantSource records duplicate a better source record (Kept).
	RedundantSource
	// RedundantDestination records already have an equivalent in the destination.
	RedundantDestination
)

func (t Tag) String() string {
	switch t {
	case Novel:
		return "NOVEL"
	case RedundantSource:
		return "REDUNDANT_SOURCE"
	case RedundantDestination:
		return "REDUNDANT_DESTINATION"
	default:
		return fmt.Sprintf("Tag(%d)", int(t))
	}
}

// ParseTag reverses Tag.String.
func ParseTag(s string) (Tag, error) {
	switch strings.ToUpper(s) {
	case "NOVEL":
		return Novel, nil
	case "REDUNDANT_SOURCE":
		return RedundantSource, nil
	case "REDUNDANT_DESTINATION":
		return RedundantDestination, nil
	}
	return 0, fmt.Errorf("unknown decision tag %q", s)
}

// Decision is the outcome for one source id.
type Decision struct {
	ID  string
	Tag Tag
	// Kept is the representative that made this record redundant. Set only
	// for RedundantSource.
	Kept string
	// Match is the best destination member of the group. Set only for
	// RedundantDestination.
	Match string
	// GroupSize counts source and destination members of the record's group.
	GroupSize int
}

// Redundant reports whether the record should not be imported.
func (d Decision) Redundant() bool { return d.Tag != Novel }

// Resolve clusters the union of source and destination and classifies each
// source record. The Scope field of the inputs is ignored; membership in the
// two slices decides it. A group that touches the destination makes all of
// its source members RedundantDestination, whatever their quality.
// Decisions are sorted by id.
func Resolve(source, destination []Record, threshold int, opts ...Option) ([]Decision, error) {
	all := make([]Record, 0, len(source)+len(destination))
	for _, r := range source {
		r.Scope = Source
		all = append(all, r)
	}
	for _, r := range destination {
		r.Scope = Destination
		all = append(all, r)
	}

	groups, err := Components(all, threshold, opts...)
	if err != nil {
		return nil, err
	}

	out := make([]Decision, 0, len(source))
	for _, g := range groups {
		var src, dst []Record
		for _, m := range g.Members {
			if m.Scope == Destination {
				dst = append(dst, m)
			} else {
				src = append(src, m)
			}
		}
		if len(src) == 0 {
			continue
		}

		if len(dst) > 0 {
			match := Representative(dst).ID
			for _, m := range src {
				out = append(out, Decision{ID: m.ID, Tag: RedundantDestination, Match: match, GroupSize: g.Size()})
			}
			continue
		}

		kept := Representative(src).ID
		for _, m := range src {
			d := Decision{ID: m.ID, Tag: Novel, GroupSize: g.Size()}
			if m.ID != kept {
				d.Tag = RedundantSource
				d.Kept = kept
			}
			out = append(out, d)
		}
	}

	slices.SortFunc(out, func(a, b Decision) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}
