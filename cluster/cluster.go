// Package cluster groups perceptual fingerprints into duplicate groups.
//
// Similarity "distance <= threshold" is not transitive. Groups are the
// connected components of the threshold graph: two records land in the same
// group when a chain of near-duplicates links them, even if their own
// distance is above the threshold.
package cluster

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/luinbytes/media-deduplicator/phash"
)

// Scope tags which side of a cross-scope comparison a record came from.
type Scope int

const (
	Source Scope = iota
	Destination
)

func (s Scope) String() string {
	if s == Destination {
		return "DESTINATION"
	}
	return "SOURCE"
}

var (
	// ErrIncomparable is returned when records were hashed with different algorithms.
	ErrIncomparable = phash.ErrIncomparable
	// ErrDuplicateID is returned when an id appears twice within one scope.
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrNegativeThreshold is returned for a threshold below zero.
	ErrNegativeThreshold = errors.New("threshold must be non-negative")
	// ErrInvalidQuality is returned for a quality score that is negative,
	// NaN or infinite.
	ErrInvalidQuality = errors.New("quality score must be a finite non-negative number")
)

// Record is one hashed media item.
type Record struct {
	ID          string
	Fingerprint phash.Fingerprint
	// Quality ranks members when picking a representative, e.g. pixel area.
	Quality float64
	Scope   Scope
}

// Group is a set of records connected under the threshold. Members are sorted
// by id.
type Group struct {
	Members        []Record
	Representative Record
}

// Size is the number of members.
func (g Group) Size() int { return len(g.Members) }

// IsDuplicate reports whether the group implies any action.
func (g Group) IsDuplicate() bool { return len(g.Members) > 1 }

type options struct {
	workers int
}

// Option configures clustering.
type Option func(*options)

// WithWorkers spreads the pairwise distance computation over n goroutines.
// The resulting groups do not depend on n.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Cluster returns the duplicate groups of records: every connected component
// with at least two members. Groups are ordered by their first member id.
func Cluster(records []Record, threshold int, opts ...Option) ([]Group, error) {
	all, err := Components(records, threshold, opts...)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, g := range all {
		if g.IsDuplicate() {
			out = append(out, g)
		}
	}
	return out, nil
}

// Components is like Cluster but also returns singletons.
func Components(records []Record, threshold int, opts ...Option) ([]Group, error) {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeThreshold, threshold)
	}
	sorted, err := canonical(records)
	if err != nil {
		return nil, err
	}

	ds := newDisjointSet(len(sorted))
	if err := connect(ds, sorted, threshold, o.workers); err != nil {
		return nil, err
	}

	comps := ds.components()
	groups := make([]Group, 0, len(comps))
	for _, idx := range comps {
		members := make([]Record, len(idx))
		for k, i := range idx {
			members[k] = sorted[i]
		}
		groups = append(groups, Group{Members: members, Representative: Representative(members)})
	}
	return groups, nil
}

// Representative picks the member with the highest quality, breaking ties by
// the lowest id. It depends only on the member set, never on merge order.
// members must not be empty.
func Representative(members []Record) Record {
	best := members[0]
	for _, m := range members[1:] {
		if m.Quality > best.Quality || (m.Quality == best.Quality && compareRecords(m, best) < 0) {
			best = m
		}
	}
	return best
}

func compareRecords(a, b Record) int {
	return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Scope, b.Scope))
}

// canonical validates records and returns them sorted by (id, scope).
func canonical(records []Record) ([]Record, error) {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, compareRecords)
	for i, r := range sorted {
		if r.Quality < 0 || math.IsNaN(r.Quality) || math.IsInf(r.Quality, 0) {
			return nil, fmt.Errorf("%w: %s has %v", ErrInvalidQuality, r.ID, r.Quality)
		}
		if r.Fingerprint.Algorithm != sorted[0].Fingerprint.Algorithm {
			return nil, fmt.Errorf("%w: %s is %s, %s is %s", ErrIncomparable,
				r.ID, r.Fingerprint.Algorithm, sorted[0].ID, sorted[0].Fingerprint.Algorithm)
		}
		if i > 0 && compareRecords(sorted[i-1], r) == 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrDuplicateID, r.ID, r.Scope)
		}
	}
	return sorted, nil
}

// connect unions every pair within threshold. With several workers the edge
// lists are computed concurrently per row and applied afterwards in row
// order.
func connect(ds *disjointSet, recs []Record, threshold, workers int) error {
	n := len(recs)
	if workers <= 1 || n < 2 {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if phash.HammingDistance(recs[i].Fingerprint.Hash, recs[j].Fingerprint.Hash) <= threshold {
					ds.union(i, j)
				}
			}
		}
		return nil
	}

	edges := make([][]int, n)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for j := i + 1; j < n; j++ {
				if phash.HammingDistance(recs[i].Fingerprint.Hash, recs[j].Fingerprint.Hash) <= threshold {
					edges[i] = append(edges[i], j)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, row := range edges {
		for _, j := range row {
			ds.union(i, j)
		}
	}
	return nil
}
