package cluster

import (
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luinbytes/media-deduplicator/phash"
)

func rec(id string, hash uint64, quality float64) Record {
	return Record{ID: id, Fingerprint: phash.Fingerprint{Algorithm: phash.PHash, Hash: hash}, Quality: quality}
}

func ids(g Group) []string {
	out := make([]string, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.ID
	}
	return out
}

func TestClusterChainedSimilarity(t *testing.T) {
	// a..b and b..c are within 3 bits, a..c is 6 bits apart. The chain
	// through b puts all three in one group.
	a := rec("a.jpg", 0b000000, 1)
	b := rec("b.jpg", 0b000111, 1)
	c := rec("c.jpg", 0b111111, 1)

	d, err := a.Fingerprint.Distance(c.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, 6, d)

	groups, err := Cluster([]Record{c, a, b}, 3)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, ids(groups[0]))

	// Without the bridge a and c stay apart.
	groups, err = Cluster([]Record{a, c}, 3)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestClusterThresholdZero(t *testing.T) {
	records := []Record{
		rec("a", 0xF0, 1),
		rec("b", 0xF0, 1),
		rec("c", 0xF1, 1),
		rec("d", 0x0F, 1),
		rec("e", 0x0F, 1),
	}
	groups, err := Cluster(records, 0)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a", "b"}, ids(groups[0]))
	assert.Equal(t, []string{"d", "e"}, ids(groups[1]))
}

func TestClusterSingletonsNotReported(t *testing.T) {
	records := []Record{rec("a", 0, 1), rec("b", ^uint64(0), 1)}
	groups, err := Cluster(records, 10)
	require.NoError(t, err)
	assert.Empty(t, groups)

	all, err := Components(records, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, g := range all {
		assert.False(t, g.IsDuplicate())
		assert.Equal(t, g.Members[0], g.Representative)
	}

	groups, err = Cluster(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestRepresentative(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		want    string
	}{
		{"highest quality", []Record{rec("a", 1, 100), rec("b", 1, 400), rec("c", 1, 200)}, "b"},
		{"tie lowest id", []Record{rec("z", 1, 50), rec("m", 1, 50), rec("q", 1, 10)}, "m"},
		{"zero quality", []Record{rec("y", 1, 0), rec("x", 1, 0)}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := Cluster(tt.records, 0)
			require.NoError(t, err)
			require.Len(t, groups, 1)
			g := groups[0]
			assert.Equal(t, tt.want, g.Representative.ID)
			for _, m := range g.Members {
				assert.GreaterOrEqual(t, g.Representative.Quality, m.Quality)
			}
		})
	}
}

func TestClusterValidation(t *testing.T) {
	_, err := Cluster([]Record{rec("a", 0, 1)}, -1)
	assert.ErrorIs(t, err, ErrNegativeThreshold)

	_, err = Cluster([]Record{rec("a", 0, 1), rec("a", 0, 1)}, 5)
	assert.ErrorIs(t, err, ErrDuplicateID)

	mixed := rec("b", 0, 1)
	mixed.Fingerprint.Algorithm = phash.DHash
	_, err = Cluster([]Record{rec("a", 0, 1), mixed}, 5)
	assert.ErrorIs(t, err, ErrIncomparable)
	assert.ErrorIs(t, err, phash.ErrIncomparable)

	for _, q := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = Cluster([]Record{rec("a", 0, q), rec("b", 0, 100)}, 0)
		assert.ErrorIs(t, err, ErrInvalidQuality, "quality %v", q)
	}

	// The same id in both scopes is two different records.
	dst := rec("a", 0, 1)
	dst.Scope = Destination
	groups, err := Cluster([]Record{rec("a", 0, 1), dst}, 0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, Source, groups[0].Representative.Scope)
}

func randomRecords(n int, seed uint64) []Record {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	base := make([]uint64, 6)
	for i := range base {
		base[i] = r.Uint64()
	}
	out := make([]Record, n)
	for i := range out {
		h := base[r.IntN(len(base))]
		// flip a few bits to make near-duplicates at various distances
		for k := r.IntN(12); k > 0; k-- {
			h ^= 1 << r.IntN(64)
		}
		out[i] = rec("img"+strconv.Itoa(i), h, float64(r.IntN(5)))
	}
	return out
}

func TestClusterMonotonicInThreshold(t *testing.T) {
	records := randomRecords(120, 7)

	prevCount := len(records) + 1
	prevSize := map[string]int{}
	for threshold := 0; threshold <= 24; threshold++ {
		groups, err := Components(records, threshold)
		require.NoError(t, err)

		assert.LessOrEqual(t, len(groups), prevCount, "threshold %d", threshold)
		prevCount = len(groups)

		size := map[string]int{}
		for _, g := range groups {
			for _, m := range g.Members {
				size[m.ID] = g.Size()
			}
		}
		for id, s := range size {
			assert.GreaterOrEqual(t, s, prevSize[id], "threshold %d id %s", threshold, id)
		}
		prevSize = size
	}
}

func TestClusterWorkersAgree(t *testing.T) {
	records := randomRecords(200, 42)
	want, err := Cluster(records, 8)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	for _, workers := range []int{2, 4, 16} {
		got, err := Cluster(records, 8, WithWorkers(workers))
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestClusterInputOrderIrrelevant(t *testing.T) {
	records := randomRecords(60, 3)
	want, err := Cluster(records, 6)
	require.NoError(t, err)

	reversed := make([]Record, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	got, err := Cluster(reversed, 6)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func decisionsByID(ds []Decision) map[string]Decision {
	out := make(map[string]Decision, len(ds))
	for _, d := range ds {
		out[d.ID] = d
	}
	return out
}

func TestResolveWithinSource(t *testing.T) {
	source := []Record{rec("A", 0b0000, 10), rec("B", 0b0011, 5)}

	got, err := Resolve(source, nil, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	d := decisionsByID(got)
	assert.Equal(t, Novel, d["A"].Tag)
	assert.Empty(t, d["A"].Kept)
	assert.Equal(t, RedundantSource, d["B"].Tag)
	assert.Equal(t, "A", d["B"].Kept)
	assert.Equal(t, 2, d["B"].GroupSize)
}

func TestResolveAgainstDestination(t *testing.T) {
	source := []Record{rec("A", 0b0000, 10), rec("B", 0b0011, 5)}
	destination := []Record{rec("C", 0b0001, 1)}

	got, err := Resolve(source, destination, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, d := range got {
		assert.Equal(t, RedundantDestination, d.Tag, d.ID)
		assert.Equal(t, "C", d.Match)
		assert.Empty(t, d.Kept)
		assert.True(t, d.Redundant())
	}
}

func TestResolveNovelAndOrdering(t *testing.T) {
	source := []Record{
		rec("z-unique", 0xFFFF000000000000, 3),
		rec("m-dup", 0x00000000000000F0, 2),
		rec("a-dup", 0x00000000000000F1, 9),
	}
	destination := []Record{
		rec("dst-only", 0x0F0F0F0F0F0F0F0F, 8),
	}

	got, err := Resolve(source, destination, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a-dup", got[0].ID)
	assert.Equal(t, "m-dup", got[1].ID)
	assert.Equal(t, "z-unique", got[2].ID)

	assert.Equal(t, Novel, got[0].Tag)
	assert.Equal(t, RedundantSource, got[1].Tag)
	assert.Equal(t, "a-dup", got[1].Kept)
	assert.Equal(t, Novel, got[2].Tag)
	assert.Equal(t, 1, got[2].GroupSize)
}

func TestResolveDestinationBridgesSources(t *testing.T) {
	// The two source images are too far apart on their own but both are close
	// to the destination copy.
	source := []Record{rec("s1", 0b000000, 1), rec("s2", 0b111111, 1)}
	destination := []Record{rec("d1", 0b000111, 1), rec("d0", 0b000111, 1)}

	got, err := Resolve(source, destination, 3)
	require.NoError(t, err)
	for _, d := range got {
		assert.Equal(t, RedundantDestination, d.Tag)
		assert.Equal(t, "d0", d.Match)
	}
}

func TestResolveIgnoresInputScope(t *testing.T) {
	mislabelled := rec("A", 0, 1)
	mislabelled.Scope = Destination
	got, err := Resolve([]Record{mislabelled}, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Novel, got[0].Tag)
}

func TestResolveErrors(t *testing.T) {
	src := []Record{rec("A", 0, 1)}
	dst := []Record{{ID: "B", Fingerprint: phash.Fingerprint{Algorithm: phash.AHash}}}
	_, err := Resolve(src, dst, 5)
	assert.ErrorIs(t, err, ErrIncomparable)

	_, err = Resolve(src, nil, -3)
	assert.ErrorIs(t, err, ErrNegativeThreshold)
}

func TestTagText(t *testing.T) {
	for _, tag := range []Tag{Novel, RedundantSource, RedundantDestination} {
		back, err := ParseTag(tag.String())
		require.NoError(t, err)
		assert.Equal(t, tag, back)
	}
	_, err := ParseTag("MAYBE")
	assert.Error(t, err)
}

func BenchmarkCluster(b *testing.B) {
	records := randomRecords(1000, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Cluster(records, 10, WithWorkers(4))
	}
}
