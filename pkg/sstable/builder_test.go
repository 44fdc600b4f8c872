package sstable

import (
	"path/filepath"
	"testing"

	"github.com/driftkv/lsmsst/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSplitsAcrossMultipleBlocks(t *testing.T) {
	b := NewBuilder(40)
	for i := 0; i < 10; i++ {
		key := kv.Key{'k', '1' + byte(i)}
		b.Add(key, []byte("vvv"))
	}

	dir := t.TempDir()
	table, err := b.Build(NextID(), nil, filepath.Join(dir, "t.sst"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	assert.Greater(t, table.NumBlocks(), 1)

	it := NewIterator(table)
	it.SeekToFirst()
	var got []string
	for it.IsValid() {
		got = append(got, string(it.Key()))
		require.NoError(t, it.Next())
	}
	var want []string
	for i := 0; i < 10; i++ {
		want = append(want, string([]byte{'k', '1' + byte(i)}))
	}
	assert.Equal(t, want, got)
}

func TestBuilderRejectsEmptyBuild(t *testing.T) {
	b := NewBuilder(4096)
	_, err := b.Build(NextID(), nil, filepath.Join(t.TempDir(), "empty.sst"))
	assert.Error(t, err)
}

func TestEstimatedSizeExcludesUnflushedBlock(t *testing.T) {
	b := NewBuilder(4096)
	assert.Equal(t, 0, b.EstimatedSize())
	b.Add(kv.Key("a"), []byte("1"))
	// The first entry stays inside the in-progress block builder until a flush, so
	// EstimatedSize (data already committed to the table) is still zero.
	assert.Equal(t, 0, b.EstimatedSize())
}
