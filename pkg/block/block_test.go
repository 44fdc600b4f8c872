package block

import (
	"testing"

	"github.com/driftkv/lsmsst/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSingleBlockThreeEntries mirrors spec.md §8 scenario 1.
func TestSingleBlockThreeEntries(t *testing.T) {
	b := NewBuilder(DefaultTargetSizeForTest())
	require.True(t, b.Add(kv.Key("a"), []byte("1")))
	require.True(t, b.Add(kv.Key("b"), []byte("22")))
	require.True(t, b.Add(kv.Key("c"), []byte("333")))

	blk := b.Build()
	encoded := blk.Encode()
	// data: (2+1+2+1) + (2+1+2+2) + (2+1+2+3) = 6+7+8 = 21; offsets: 3*2 = 6; trailer: 2.
	assert.Equal(t, 29, len(encoded))
	assert.Equal(t, []byte{0x00, 0x03}, encoded[len(encoded)-2:], "trailer should be entry count 3")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.NumEntries())

	it := NewIterator(decoded)
	it.SeekToFirst()
	var gotKeys []string
	var gotValues []string
	for it.IsValid() {
		gotKeys = append(gotKeys, string(it.Key()))
		gotValues = append(gotValues, string(it.Value()))
		it.Next()
	}
	assert.Equal(t, []string{"a", "b", "c"}, gotKeys)
	assert.Equal(t, []string{"1", "22", "333"}, gotValues)

	it.SeekToKey(kv.Key("b"))
	require.True(t, it.IsValid())
	assert.Equal(t, "b", string(it.Key()))
	assert.Equal(t, "22", string(it.Value()))

	it.SeekToKey(kv.Key("b0"))
	require.True(t, it.IsValid())
	assert.Equal(t, "c", string(it.Key()))

	it.SeekToKey(kv.Key("d"))
	assert.False(t, it.IsValid())
}

// TestBlockSplitOnBudget mirrors spec.md §8 scenario 2: a small target size forces the builder
// (as used by a caller flushing across multiple Block instances) to split entries.
func TestBlockSplitOnBudget(t *testing.T) {
	const targetSize = 40
	var blocks []*Block
	b := NewBuilder(targetSize)
	for i := range 10 {
		key := kv.Key{'k', '1' + byte(i)}
		value := []byte{'v', 'v', 'v'}
		if !b.Add(key, value) {
			blocks = append(blocks, b.Build())
			b = NewBuilder(targetSize)
			require.True(t, b.Add(key, value), "a fresh builder must always accept the first entry")
		}
	}
	if !b.IsEmpty() {
		blocks = append(blocks, b.Build())
	}
	require.GreaterOrEqual(t, len(blocks), 2, "expected the budget to force at least 2 blocks")

	var gotKeys []string
	for _, blk := range blocks {
		it := NewIterator(blk)
		for it.SeekToFirst(); it.IsValid(); it.Next() {
			gotKeys = append(gotKeys, string(it.Key()))
		}
	}
	var wantKeys []string
	for i := range 10 {
		wantKeys = append(wantKeys, string([]byte{'k', '1' + byte(i)}))
	}
	assert.Equal(t, wantKeys, gotKeys)
}

func TestBlockRoundTrip(t *testing.T) {
	b := NewBuilder(4096)
	entries := []kv.Entry{
		{Key: kv.Owned("alpha"), Value: []byte("1")},
		{Key: kv.Owned("beta"), Value: []byte("")},
		{Key: kv.Owned("gamma"), Value: []byte("33")},
	}
	for _, e := range entries {
		require.True(t, b.Add(e.Key.Bytes(), e.Value))
	}
	blk := b.Build()

	decoded, err := Decode(blk.Encode())
	require.NoError(t, err)
	assert.Equal(t, blk, decoded)
}

func TestDecodeCorruptBlock(t *testing.T) {
	_, err := Decode([]byte{0x00})
	assert.ErrorIs(t, err, ErrCorruptBlock)

	// Claimed entry count exceeds what the remaining bytes can hold.
	_, err = Decode([]byte{0x00, 0x05})
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func DefaultTargetSizeForTest() int {
	return 4096
}
