// Since the storage engine has multiple sorted sources live at once (memtables, SSTable levels,
// compaction inputs), it needs a way to iterate over all of them in constant extra memory instead
// of materializing a merged copy. This module implements a heap-based k-way merge over Cursors:
// keys pulled from multiple sources are ordered by key and, for ties, by source priority; values
// from lower-priority sources are discarded once a higher-priority source has already produced
// that key.
package merge

import (
	"container/heap"

	"github.com/driftkv/lsmsst/pkg/klog"
	"github.com/driftkv/lsmsst/pkg/kv"
)

// Cursor is the minimal interface a sorted key-value source exposes to Iterator (spec.md §4.8).
// sstable.Iterator satisfies it; block.Iterator does not, since its Next returns no error.
type Cursor[V any] interface {
	SeekToFirst()
	Next() error
	Key() kv.Key
	Value() V
	IsValid() bool
}

// heapEntry is the latest pulled item from one of Iterator's streams.
type heapEntry[V any] struct {
	key      kv.Owned
	streamID int
}

// entryHeap orders by ascending key, breaking ties by ascending streamID so that lower-indexed
// streams shadow higher-indexed ones on equal keys (spec.md §4.8, §9).
type entryHeap[V any] []*heapEntry[V]

var _ heap.Interface = (*entryHeap[int])(nil)

func (h entryHeap[V]) Len() int { return len(h) }

func (h entryHeap[V]) Less(i, j int) bool {
	if cmp := kv.Compare(h[i].key.Bytes(), h[j].key.Bytes()); cmp != 0 {
		return cmp < 0
	}
	return h[i].streamID < h[j].streamID
}

func (h entryHeap[V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap[V]) Push(x any) {
	entry, ok := x.(*heapEntry[V])
	if !ok {
		klog.Invariant("merge", "pushed_invalid_type", "a non-heapEntry item was pushed onto the merge heap.")
		return
	}
	*h = append(*h, entry)
}

func (h *entryHeap[V]) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Iterator merges N sorted Cursors of the same value type, preserving ascending key order. For
// equal keys across streams, the stream with the smallest index (highest priority) shadows the
// rest (spec.md §4.8).
type Iterator[V any] struct {
	streams []Cursor[V]
	heap    entryHeap[V]
	current int // index into streams of the cursor current exposes, or -1 if invalid
}

// New constructs an Iterator over streams, in priority order (streams[0] has the highest
// priority). Invalid cursors are dropped immediately; the remaining cursors are heap-ordered and
// the minimum is selected as current.
func New[V any](streams []Cursor[V]) *Iterator[V] {
	it := &Iterator[V]{streams: streams, current: -1}
	it.heap = make(entryHeap[V], 0, len(streams))
	for i, s := range streams {
		if s.IsValid() {
			heap.Push(&it.heap, &heapEntry[V]{key: kv.Key(s.Key()).Clone(), streamID: i})
		}
	}
	it.selectCurrent()
	return it
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *Iterator[V]) IsValid() bool {
	return it.current >= 0
}

// Key returns the key current exposes. Only valid to call when IsValid().
func (it *Iterator[V]) Key() kv.Key {
	return it.streams[it.current].Key()
}

// Value returns the value current exposes. Only valid to call when IsValid().
func (it *Iterator[V]) Value() V {
	return it.streams[it.current].Value()
}

// Next advances past the current key. Every stream whose next key equals the current key is
// drained first (their values are shadowed and discarded), then current itself advances
// (spec.md §4.8).
func (it *Iterator[V]) Next() error {
	if !it.IsValid() {
		return nil
	}
	currentKey := it.Key().Clone()

	for it.heap.Len() > 0 && kv.Compare(it.heap[0].key.Bytes(), currentKey.Bytes()) == 0 {
		it.debugCheckHeapTop(currentKey)
		top := heap.Pop(&it.heap).(*heapEntry[V])
		if err := it.streams[top.streamID].Next(); err != nil {
			return err
		}
		if it.streams[top.streamID].IsValid() {
			heap.Push(&it.heap, &heapEntry[V]{key: kv.Key(it.streams[top.streamID].Key()).Clone(), streamID: top.streamID})
		}
	}
	it.debugCheckHeapTop(currentKey)

	curStream := it.streams[it.current]
	if err := curStream.Next(); err != nil {
		return err
	}
	if !curStream.IsValid() {
		it.selectCurrent()
		return nil
	}
	if it.heap.Len() > 0 && it.heap[0].streamID != it.current && it.outranks(it.heap[0], it.current) {
		it.swapCurrentWithHeapTop()
	}
	return nil
}

// selectCurrent pops the heap's minimum into current, leaving current == -1 if the heap is
// empty.
func (it *Iterator[V]) selectCurrent() {
	if it.heap.Len() == 0 {
		it.current = -1
		return
	}
	top := heap.Pop(&it.heap).(*heapEntry[V])
	it.current = top.streamID
}

// swapCurrentWithHeapTop pushes current back onto the heap and promotes the heap's minimum to
// current.
func (it *Iterator[V]) swapCurrentWithHeapTop() {
	heap.Push(&it.heap, &heapEntry[V]{key: it.Key().Clone(), streamID: it.current})
	top := heap.Pop(&it.heap).(*heapEntry[V])
	it.current = top.streamID
}

// outranks reports whether heap entry e has priority over the stream at currentIdx: a smaller
// key wins, and on equal keys a smaller stream index wins.
func (it *Iterator[V]) outranks(e *heapEntry[V], currentIdx int) bool {
	currentKey := it.streams[currentIdx].Key()
	if cmp := kv.Compare(e.key.Bytes(), currentKey); cmp != 0 {
		return cmp < 0
	}
	return e.streamID < currentIdx
}

// debugCheckHeapTop enforces the invariant that every heap entry's key is >= current's key
// whenever observed during Next (spec.md §8 debug invariant); a violation means an upstream
// stream yielded keys out of order.
func (it *Iterator[V]) debugCheckHeapTop(currentKey kv.Owned) {
	if it.heap.Len() == 0 {
		return
	}
	if kv.Compare(it.heap[0].key.Bytes(), currentKey.Bytes()) < 0 {
		klog.Invariant("merge", "heap_ordering_violation",
			"a merge stream produced a key less than the iterator's current key.",
			"heapTopKey", string(it.heap[0].key), "currentKey", string(currentKey))
	}
}
