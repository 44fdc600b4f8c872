package sstable

import (
	"github.com/driftkv/lsmsst/pkg/block"
	"github.com/driftkv/lsmsst/pkg/kv"
)

// Iterator is a cursor across the blocks of one SsTable, implementing merge.Cursor[[]byte]
// (spec.md §4.7).
type Iterator struct {
	table    *SsTable
	blockIdx int
	inner    *block.Iterator
	err      error // sticky: set by a failed loadBlock, surfaced by Next and Err
}

// NewIterator returns an invalid Iterator over table; call SeekToFirst or SeekToKey to position
// it.
func NewIterator(table *SsTable) *Iterator {
	return &Iterator{table: table, blockIdx: -1}
}

// SeekToFirst loads block 0 and positions at its first entry. A block read failure leaves the
// iterator invalid; call Err to distinguish that from a genuinely empty table.
func (it *Iterator) SeekToFirst() {
	it.loadBlock(0)
	if it.inner != nil {
		it.inner.SeekToFirst()
	}
}

// SeekToKey positions at the smallest entry whose key is >= key. If key exceeds every entry in
// the block FindBlockIdx selects, it advances to the next block's first entry (spec.md §4.7); if
// no such block exists, it becomes invalid. A block read failure leaves the iterator invalid;
// call Err to distinguish that from key genuinely exceeding the table's range.
func (it *Iterator) SeekToKey(key kv.Key) {
	idx := it.table.FindBlockIdx(key)
	it.loadBlock(idx)
	if it.inner == nil {
		return
	}
	it.inner.SeekToKey(key)
	if !it.inner.IsValid() {
		it.loadBlock(idx + 1)
		if it.inner != nil {
			it.inner.SeekToFirst()
		}
	}
}

// Next advances the inner block iterator, rolling over to the next block when the current one is
// exhausted (spec.md §4.7). A read failure on the next block is returned rather than swallowed
// into ordinary end-of-stream, per spec.md §7: corruption is surfaced, never silently skipped.
func (it *Iterator) Next() error {
	if it.inner == nil {
		return it.err
	}
	it.inner.Next()
	if !it.inner.IsValid() {
		if err := it.loadBlock(it.blockIdx + 1); err != nil {
			return err
		}
		if it.inner != nil {
			it.inner.SeekToFirst()
		}
	}
	return nil
}

// Err returns the first error encountered by a block load, or nil if the iterator's invalidity
// (if any) reflects ordinary end-of-table rather than a read failure.
func (it *Iterator) Err() error {
	return it.err
}

// Key returns the key at the current position. Only valid to call when IsValid().
func (it *Iterator) Key() kv.Key {
	return it.inner.Key()
}

// Value returns the value at the current position. Only valid to call when IsValid().
func (it *Iterator) Value() []byte {
	return it.inner.Value()
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *Iterator) IsValid() bool {
	return it.inner != nil && it.inner.IsValid()
}

// loadBlock reads block idx through the table's cache and positions inner over it, invalid
// (idx == NumEntries()) until a Seek call. If idx is out of range, inner is cleared to nil and
// the iterator stays invalid, with no error: that is ordinary end-of-table.
//
// A read failure also clears inner to nil, since there is no block left to position over, but it
// additionally records the error on it.err and returns it, so Next can propagate it instead of
// reporting the same end-of-stream a clean exhaustion would.
func (it *Iterator) loadBlock(idx int) error {
	it.blockIdx = idx
	if idx < 0 || idx >= it.table.NumBlocks() {
		it.inner = nil
		return nil
	}
	blk, err := it.table.ReadBlockCached(idx)
	if err != nil {
		it.inner = nil
		it.err = err
		return err
	}
	it.inner = block.NewIterator(blk)
	return nil
}
