package merge

import (
	"testing"

	"github.com/driftkv/lsmsst/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceCursor is a Cursor over an in-memory sorted slice, used to exercise Iterator without
// depending on the block/sstable packages.
type sliceCursor struct {
	entries []kv.Entry
	idx     int
}

func newSliceCursor(entries []kv.Entry) *sliceCursor {
	return &sliceCursor{entries: entries, idx: 0}
}

func (c *sliceCursor) SeekToFirst() { c.idx = 0 }

func (c *sliceCursor) Next() error {
	c.idx++
	return nil
}

func (c *sliceCursor) Key() kv.Key {
	return c.entries[c.idx].Key.Bytes()
}

func (c *sliceCursor) Value() string {
	return string(c.entries[c.idx].Value)
}

func (c *sliceCursor) IsValid() bool {
	return c.idx < len(c.entries)
}

func drain(t *testing.T, it *Iterator[string]) []kv.Entry {
	t.Helper()
	var out []kv.Entry
	for it.IsValid() {
		out = append(out, kv.Entry{Key: it.Key().Clone(), Value: []byte(it.Value())})
		require.NoError(t, it.Next())
	}
	return out
}

// TestMergeShadowing mirrors spec.md §8 scenario 4.
func TestMergeShadowing(t *testing.T) {
	stream0 := newSliceCursor([]kv.Entry{
		{Key: kv.Owned("a"), Value: []byte("A0")},
		{Key: kv.Owned("b"), Value: []byte("B0")},
	})
	stream1 := newSliceCursor([]kv.Entry{
		{Key: kv.Owned("a"), Value: []byte("A1")},
		{Key: kv.Owned("c"), Value: []byte("C1")},
	})

	it := New[string]([]Cursor[string]{stream0, stream1})
	got := drain(t, it)

	require.Len(t, got, 3)
	assert.Equal(t, "a", string(got[0].Key))
	assert.Equal(t, "A0", string(got[0].Value))
	assert.Equal(t, "b", string(got[1].Key))
	assert.Equal(t, "B0", string(got[1].Value))
	assert.Equal(t, "c", string(got[2].Key))
	assert.Equal(t, "C1", string(got[2].Value))
}

func TestMergeEmptyStreamsDropped(t *testing.T) {
	empty := newSliceCursor(nil)
	nonEmpty := newSliceCursor([]kv.Entry{{Key: kv.Owned("x"), Value: []byte("1")}})

	it := New[string]([]Cursor[string]{empty, nonEmpty})
	require.True(t, it.IsValid())
	assert.Equal(t, "x", string(it.Key()))
	require.NoError(t, it.Next())
	assert.False(t, it.IsValid())
}

func TestMergeAllEmptyIsInvalid(t *testing.T) {
	it := New[string]([]Cursor[string]{newSliceCursor(nil), newSliceCursor(nil)})
	assert.False(t, it.IsValid())
}

func TestMergeAscendingAcrossManyStreams(t *testing.T) {
	streams := []Cursor[string]{
		newSliceCursor([]kv.Entry{{Key: kv.Owned("1"), Value: []byte("s0")}, {Key: kv.Owned("4"), Value: []byte("s0")}}),
		newSliceCursor([]kv.Entry{{Key: kv.Owned("2"), Value: []byte("s1")}, {Key: kv.Owned("5"), Value: []byte("s1")}}),
		newSliceCursor([]kv.Entry{{Key: kv.Owned("3"), Value: []byte("s2")}, {Key: kv.Owned("6"), Value: []byte("s2")}}),
	}
	it := New[string](streams)
	got := drain(t, it)

	var keys []string
	for _, e := range got {
		keys = append(keys, string(e.Key))
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, keys)
}

func TestMergePreservesPriorityOnFullOverlap(t *testing.T) {
	// Every key is shadowed by stream 0, so stream 1's values must never surface.
	streams := []Cursor[string]{
		newSliceCursor([]kv.Entry{{Key: kv.Owned("k"), Value: []byte("winner")}}),
		newSliceCursor([]kv.Entry{{Key: kv.Owned("k"), Value: []byte("loser")}}),
	}
	it := New[string](streams)
	got := drain(t, it)
	require.Len(t, got, 1)
	assert.Equal(t, "winner", string(got[0].Value))
}
