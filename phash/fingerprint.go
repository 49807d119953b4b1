package phash

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Algorithm selects the perceptual hash function.
type Algorithm int

const (
	AHash Algorithm = iota + 1
	DHash
	PHash
)

// Bits is the width of every fingerprint produced by this package.
const Bits = 64

// ErrUnsupportedAlgorithm is returned for an unknown algorithm selector.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// ErrIncomparable is returned when two fingerprints come from different algorithms.
var ErrIncomparable = errors.New("fingerprints are not comparable")

// ParseAlgorithm maps a config or flag value to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ahash", "average":
		return AHash, nil
	case "dhash", "difference":
		return DHash, nil
	case "phash", "perceptual":
		return PHash, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

func (a Algorithm) String() string {
	switch a {
	case AHash:
		return "ahash"
	case DHash:
		return "dhash"
	case PHash:
		return "phash"
	default:
		return "unknown(" + strconv.Itoa(int(a)) + ")"
	}
}

// Valid reports whether a is one of the supported algorithms.
func (a Algorithm) Valid() bool {
	return a == AHash || a == DHash || a == PHash
}

// Fingerprint is an immutable 64-bit perceptual hash. Bit 0 is the most
// significant bit of Hash.
type Fingerprint struct {
	Algorithm Algorithm
	Hash      uint64
}

// Bit reports whether bit i (0-based, most significant first) is set.
func (f Fingerprint) Bit(i int) bool {
	return f.Hash&(1<<(Bits-1-i)) != 0
}

// Distance is the Hamming distance between f and other.
func (f Fingerprint) Distance(other Fingerprint) (int, error) {
	if f.Algorithm != other.Algorithm {
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, f.Algorithm, other.Algorithm)
	}
	return bits.OnesCount64(f.Hash ^ other.Hash), nil
}

// HammingDistance counts differing bits without checking the algorithm.
// Callers must have validated comparability beforehand.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// String renders the fingerprint as "algo:hex".
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s:%016x", f.Algorithm, f.Hash)
}

// ParseFingerprint reverses String.
func ParseFingerprint(s string) (Fingerprint, error) {
	name, hexPart, ok := strings.Cut(s, ":")
	if !ok {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: missing algorithm prefix", s)
	}
	algo, err := ParseAlgorithm(name)
	if err != nil {
		return Fingerprint{}, err
	}
	if len(hexPart) != Bits/4 {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: want %d hex digits", s, Bits/4)
	}
	h, err := strconv.ParseUint(hexPart, 16, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint{Algorithm: algo, Hash: h}, nil
}

// Similarity expresses distance as a percentage of the hash width.
func Similarity(distance int) float64 {
	return 100.0 - float64(distance)/float64(Bits)*100.0
}

// Recommended thresholds for 64-bit fingerprints.
const (
	ThresholdIdentical       = 0
	ThresholdVerySimilar     = 5
	ThresholdSimilar         = 10
	ThresholdSomewhatSimilar = 15
)
