package block

import (
	"sort"

	"github.com/driftkv/lsmsst/pkg/kv"
)

// Iterator positions a cursor within a decoded Block (spec.md §4.3). The zero value is not
// ready to use; construct with NewIterator. An Iterator borrows its Block by shared reference
// and is never itself shared across goroutines.
type Iterator struct {
	block    *Block
	idx      int // in [0, block.NumEntries()]; NumEntries() means invalid
	key      kv.Owned
	valStart int
	valEnd   int
}

// NewIterator returns an invalid iterator over block; call SeekToFirst or SeekToKey to
// position it.
func NewIterator(b *Block) *Iterator {
	return &Iterator{block: b, idx: b.NumEntries()}
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *Iterator) IsValid() bool {
	return it.idx < it.block.NumEntries()
}

// Key returns the key at the current position. Only valid to call when IsValid().
func (it *Iterator) Key() kv.Key {
	return it.key.Bytes()
}

// Value returns the value at the current position. Only valid to call when IsValid().
func (it *Iterator) Value() []byte {
	return it.block.data[it.valStart:it.valEnd]
}

// SeekToFirst positions the iterator at entry 0.
func (it *Iterator) SeekToFirst() {
	it.setIdx(0)
}

// Next advances the iterator by one entry; it becomes invalid after the last entry.
func (it *Iterator) Next() {
	it.setIdx(it.idx + 1)
}

// SeekToKey positions the iterator at the smallest entry whose key is >= target, using binary
// search over the block's offset array (spec.md §9: binary search, not linear scan). The
// iterator becomes invalid if no such entry exists.
func (it *Iterator) SeekToKey(target kv.Key) {
	n := it.block.NumEntries()
	idx := sort.Search(n, func(i int) bool {
		key, err := it.block.keyAt(i)
		if err != nil {
			// A block that passed Decode's validation cannot fail to decode here; if it does,
			// something corrupted the block in memory after construction.
			panic(err)
		}
		return !kv.Less(key, target)
	})
	it.setIdx(idx)
}

// setIdx positions the iterator at idx, caching its key and value range, or marks it invalid
// when idx is out of range.
func (it *Iterator) setIdx(idx int) {
	it.idx = idx
	if !it.IsValid() {
		it.key = nil
		return
	}
	key, valStart, valEnd, err := it.block.decodeEntryAt(int(it.block.offsets[idx]))
	if err != nil {
		panic(err)
	}
	it.key = key.Clone()
	it.valStart = valStart
	it.valEnd = valEnd
}
