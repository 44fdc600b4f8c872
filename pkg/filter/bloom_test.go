package filter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitsPerKeyDefaultTarget(t *testing.T) {
	// spec.md §4.4: bits_per_key(n, 0.01) ≈ 10.
	assert.Equal(t, 10, BitsPerKey(0.01))
}

// TestBloomNoFalseNegatives mirrors spec.md §8 scenario 5: every inserted key must test positive.
func TestBloomNoFalseNegatives(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	fps := randomFingerprints(r, 10000)

	f := Build(fps, 10)
	for _, fp := range fps {
		assert.True(t, f.MayContain(fp))
	}
}

// TestBloomFalsePositiveRate mirrors spec.md §8 scenario 5: FPR on 100k random non-members < 2%
// (2x the 1% target for bits_per_key = 10).
func TestBloomFalsePositiveRate(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	members := randomFingerprints(r, 10000)
	f := Build(members, 10)

	memberSet := make(map[uint32]bool, len(members))
	for _, fp := range members {
		memberSet[fp] = true
	}

	const numProbes = 100000
	falsePositives := 0
	tried := 0
	for tried < numProbes {
		fp := r.Uint32()
		if memberSet[fp] {
			continue
		}
		tried++
		if f.MayContain(fp) {
			falsePositives++
		}
	}
	fpr := float64(falsePositives) / float64(numProbes)
	assert.Less(t, fpr, 0.02)
}

func TestBloomEncodeDecodeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	fps := randomFingerprints(r, 500)
	f := Build(fps, 10)

	decoded, err := Decode(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, f.NumHashes(), decoded.NumHashes())
	assert.Equal(t, f.NumBits(), decoded.NumBits())
	for _, fp := range fps {
		assert.True(t, decoded.MayContain(fp))
	}
}

func TestDecodeRejectsEmptyInput(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

func TestFingerprint32Deterministic(t *testing.T) {
	a := Fingerprint32([]byte("hello"))
	b := Fingerprint32([]byte("hello"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint32([]byte("world")))
}

func randomFingerprints(r *rand.Rand, n int) []uint32 {
	out := make([]uint32, n)
	buf := make([]byte, 16)
	for i := range out {
		r.Read(buf)
		out[i] = Fingerprint32(buf)
	}
	return out
}
func TestEncodeIsByteAligned(t *testing.T) {
	f := Build([]uint32{1, 2, 3}, 10)
	encoded := f.Encode()
	require.Equal(t, int(f.NumBits()/8+1), len(encoded))
}
