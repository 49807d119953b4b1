// Package phash computes perceptual fingerprints of decoded images.
//
// Three 64-bit algorithms are supported:
//
//   - aHash: 8x8 box-filtered grey plane, bit set where pixel >= mean.
//   - dHash: 9x8 grey plane, bit set where a pixel is >= its right neighbour.
//   - pHash: 32x32 grey plane, 2-D DCT, bit set where a low-frequency AC
//     coefficient is >= their median. The DC position (bit 0) is always 0.
//
// All arithmetic after luminance conversion is integer, so a given raster
// hashes to the same bits on every run and platform.
package phash

import "fmt"

// Compute fingerprints one raster.
func Compute(r *Raster, algo Algorithm) (Fingerprint, error) {
	if !algo.Valid() {
		return Fingerprint{}, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}
	if err := r.Validate(); err != nil {
		return Fingerprint{}, err
	}
	gray := r.luma()

	var h uint64
	switch algo {
	case AHash:
		h = averageHash(gray, r.Width, r.Height)
	case DHash:
		h = differenceHash(gray, r.Width, r.Height)
	case PHash:
		h = perceptionHash(gray, r.Width, r.Height)
	}
	return Fingerprint{Algorithm: algo, Hash: h}, nil
}

func setBit(h uint64, i int) uint64 {
	return h | 1<<(Bits-1-i)
}

func averageHash(gray []uint8, w, h int) uint64 {
	px := boxResize(gray, w, h, 8, 8)
	var total int64
	for _, p := range px {
		total += p
	}
	var hash uint64
	for i, p := range px {
		// p >= total/64 without the division
		if p*int64(len(px)) >= total {
			hash = setBit(hash, i)
		}
	}
	return hash
}

func differenceHash(gray []uint8, w, h int) uint64 {
	px := boxResize(gray, w, h, 9, 8)
	var hash uint64
	for y := 0; y < 8; y++ {
		row := px[y*9 : (y+1)*9]
		for x := 0; x < 8; x++ {
			if row[x] >= row[x+1] {
				hash = setBit(hash, y*8+x)
			}
		}
	}
	return hash
}

func perceptionHash(gray []uint8, w, h int) uint64 {
	px := boxResize(gray, w, h, dctSize, dctSize)
	coeffs := lowFrequencyDCT(px)
	med := acMedian(coeffs)
	var hash uint64
	for i := 1; i < len(coeffs); i++ {
		if coeffs[i] >= med {
			hash = setBit(hash, i)
		}
	}
	return hash
}
