package phash

import (
	"math"
	"slices"
)

const (
	dctSize = 32
	// dctKeep is the side of the low-frequency block used by pHash.
	dctKeep = 8
	// dctShift is the fixed-point precision of the cosine table.
	dctShift = 20
)

// dctTable holds the orthonormal DCT-II basis for the first dctKeep
// frequencies, scaled by 2^dctShift and rounded. Rounding to integers makes
// the transform independent of floating-point evaluation order.
var dctTable = buildDCTTable()

func buildDCTTable() [dctKeep][dctSize]int64 {
	var t [dctKeep][dctSize]int64
	norm := math.Sqrt(2.0 / dctSize)
	for u := 0; u < dctKeep; u++ {
		cu := 1.0
		if u == 0 {
			cu = 1 / math.Sqrt2
		}
		for x := 0; x < dctSize; x++ {
			c := math.Cos(float64(2*x+1) * float64(u) * math.Pi / (2 * dctSize))
			t[u][x] = int64(math.Round(float64(cu*norm*c) * (1 << dctShift)))
		}
	}
	return t
}

// lowFrequencyDCT computes the top-left dctKeep x dctKeep block of the 2-D
// DCT of a dctSize x dctSize plane. Result index is v*dctKeep+u, where u is
// the horizontal frequency.
func lowFrequencyDCT(plane []int64) [dctKeep * dctKeep]int64 {
	// rows: tmp[y][u] = sum_x plane[y][x] * T[u][x]
	var tmp [dctSize][dctKeep]int64
	for y := 0; y < dctSize; y++ {
		row := plane[y*dctSize : (y+1)*dctSize]
		for u := 0; u < dctKeep; u++ {
			var sum int64
			for x, p := range row {
				sum += p * dctTable[u][x]
			}
			tmp[y][u] = sum
		}
	}

	var out [dctKeep * dctKeep]int64
	for v := 0; v < dctKeep; v++ {
		for u := 0; u < dctKeep; u++ {
			var sum int64
			for y := 0; y < dctSize; y++ {
				sum += tmp[y][u] * dctTable[v][y]
			}
			out[v*dctKeep+u] = sum
		}
	}
	return out
}

// median of the AC coefficients (everything except index 0).
func acMedian(coeffs [dctKeep * dctKeep]int64) int64 {
	ac := slices.Clone(coeffs[1:])
	slices.Sort(ac)
	return ac[len(ac)/2]
}
