package sstable

import (
	"testing"

	"github.com/driftkv/lsmsst/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaIndexRoundTrip(t *testing.T) {
	metas := []BlockMeta{
		{Offset: 0, FirstKey: kv.Owned("a"), LastKey: kv.Owned("m")},
		{Offset: 128, FirstKey: kv.Owned("n"), LastKey: kv.Owned("z")},
	}
	decoded, err := DecodeMetaIndex(EncodeMetaIndex(metas))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	for i := range metas {
		assert.Equal(t, metas[i].Offset, decoded[i].Offset)
		assert.Equal(t, string(metas[i].FirstKey), string(decoded[i].FirstKey))
		assert.Equal(t, string(metas[i].LastKey), string(decoded[i].LastKey))
	}
}

func TestDecodeMetaIndexRejectsTruncated(t *testing.T) {
	_, err := DecodeMetaIndex([]byte{0x00, 0x00})
	assert.ErrorIs(t, err, ErrCorruptMeta)
}

func TestDecodeMetaIndexEmptyIsEmpty(t *testing.T) {
	decoded, err := DecodeMetaIndex(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
