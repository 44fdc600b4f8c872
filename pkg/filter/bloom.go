// Package filter implements the Bloom filter attached to each SsTable for negative-lookup
// shortcuts (spec.md §4.4). The construction is specified bit-exactly (fixed double hashing, a
// specific bit-count formula) so it is hand-rolled on top of a raw bit array rather than adopting
// a higher-level Bloom filter package with its own internal hashing.
package filter

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
)

const (
	minHashCount = 1
	maxHashCount = 30
)

// BloomFilter is an immutable probabilistic set membership test over 32-bit key fingerprints
// (spec.md §4.4). A query never false-negatives; it may false-positive at a rate governed by the
// bits-per-key the filter was built with.
type BloomFilter struct {
	bits *bitset.BitSet
	m    uint32 // number of bits, always a multiple of 8
	k    int    // number of hash probes
}

// BitsPerKey returns the number of bits per key needed to achieve false positive rate fpr, per
// the standard Bloom filter sizing formula (spec.md §4.4). Used by callers sizing a filter ahead
// of Build.
func BitsPerKey(fpr float64) int {
	bits := -math.Log(fpr) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(bits))
}

// Build constructs a BloomFilter over fingerprints, sized for bitsPerKey bits of false-positive
// budget per key (spec.md §4.4):
//
//	k = round(bitsPerKey * ln2), clamped to [1, 30]
//	m = nextPow2OrCeil(n * bitsPerKey) bits, rounded up to a whole byte
//	probe_i(fp) = (h1 + i*h2) mod m, for i in [0, k), where h1 = fp and h2 = rotl(fp, 15)
func Build(fingerprints []uint32, bitsPerKey int) *BloomFilter {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	k := int(math.Round(float64(bitsPerKey) * math.Ln2))
	k = clamp(k, minHashCount, maxHashCount)

	raw := len(fingerprints) * bitsPerKey
	if raw < 8 {
		raw = 8
	}
	m := nextPow2OrCeil(uint32(raw))
	if m%8 != 0 {
		m += 8 - m%8
	}

	f := &BloomFilter{bits: bitset.New(uint(m)), m: m, k: k}
	for _, fp := range fingerprints {
		f.insert(fp)
	}
	return f
}

func (f *BloomFilter) insert(fp uint32) {
	h1, h2 := fp, rotl32(fp, 15)
	for i := 0; i < f.k; i++ {
		probe := (h1 + uint32(i)*h2) % f.m
		f.bits.Set(uint(probe))
	}
}

// MayContain reports whether fp might have been inserted. A false return is a guarantee of
// absence; a true return may be a false positive.
func (f *BloomFilter) MayContain(fp uint32) bool {
	h1, h2 := fp, rotl32(fp, 15)
	for i := 0; i < f.k; i++ {
		probe := (h1 + uint32(i)*h2) % f.m
		if !f.bits.Test(uint(probe)) {
			return false
		}
	}
	return true
}

// NumHashes returns the number of hash probes the filter performs per query.
func (f *BloomFilter) NumHashes() int {
	return f.k
}

// NumBits returns the size of the filter's underlying bit array.
func (f *BloomFilter) NumBits() uint32 {
	return f.m
}

// Encode serializes the filter as its packed bit array followed by a single trailing byte
// holding the hash count (spec.md §4.4: "bit array bytes ‖ k:u8").
func (f *BloomFilter) Encode() []byte {
	out := make([]byte, f.m/8+1)
	for i := uint32(0); i < f.m; i++ {
		if f.bits.Test(uint(i)) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	out[len(out)-1] = byte(f.k)
	return out
}

// Decode parses a filter from its Encode representation.
func Decode(raw []byte) (*BloomFilter, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("filter: encoded filter of %d bytes has no hash-count byte", len(raw))
	}
	k := int(raw[len(raw)-1])
	bitBytes := raw[:len(raw)-1]
	m := uint32(len(bitBytes)) * 8

	bits := bitset.New(uint(m))
	for i, b := range bitBytes {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				bits.Set(uint(i*8 + bit))
			}
		}
	}
	return &BloomFilter{bits: bits, m: m, k: k}, nil
}

func rotl32(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nextPow2OrCeil returns the smallest power of two >= v, so that filters can grow cleanly as
// bitsPerKey increases without awkward mod-bias from a non-power-of-two bit count.
func nextPow2OrCeil(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
