package block

import (
	"encoding/binary"
	"flag"

	"github.com/driftkv/lsmsst/pkg/klog"
	"github.com/driftkv/lsmsst/pkg/kv"
)

// DefaultTargetSize is the target size passed to NewBuilder when the caller has no opinion;
// 4 KiB matches the typical page size cited in spec.md §3.
var DefaultTargetSize = flag.Int("block_target_size", 4096, "Target size in bytes of a single data block.")

// Builder accumulates entries into one Block under a byte budget (spec.md §4.2). Callers must
// feed keys in strictly ascending order; Builder only checks this with an invariant, not a
// returned error, since out-of-order keys are a caller bug, not a runtime condition.
type Builder struct {
	targetSize int
	data       []byte
	offsets    []uint16
	firstKey   kv.Owned
	lastKey    kv.Owned
}

// NewBuilder returns an empty Builder targeting at most targetSize encoded bytes.
func NewBuilder(targetSize int) *Builder {
	return &Builder{targetSize: targetSize}
}

// IsEmpty reports whether any entry has been added yet.
func (b *Builder) IsEmpty() bool {
	return len(b.offsets) == 0
}

// FirstKey returns the key of the first entry added, or nil if the builder is empty.
func (b *Builder) FirstKey() kv.Key {
	return b.firstKey.Bytes()
}

// LastKey returns the key of the most recently added entry, or nil if the builder is empty.
func (b *Builder) LastKey() kv.Key {
	return b.lastKey.Bytes()
}

// estimatedSizeWithOneMore returns the finalized-size estimate for the block as it currently
// stands plus one more entry of entrySize bytes.
func (b *Builder) estimatedSizeWithOneMore(entrySize int) int {
	return len(b.data) + entrySize + offsetSize*(len(b.offsets)+1) + trailerSize
}

// Add appends (key, value) to the block being built. It returns false, without appending,
// when doing so would make the finalized block meet or exceed the target size and the builder
// already holds at least one entry; the very first entry is always accepted, so a single
// oversize entry still produces a valid one-entry block.
func (b *Builder) Add(key kv.Key, value []byte) bool {
	if !b.IsEmpty() && !kv.Less(b.lastKey.Bytes(), key) {
		klog.Invariant("block", "out_of_order_key", "Builder.Add called with a non-ascending key.",
			"lastKey", string(b.lastKey), "key", string(key))
	}

	entrySize := headerSize + len(key) + len(value)
	if !b.IsEmpty() && b.estimatedSizeWithOneMore(entrySize) >= b.targetSize {
		return false
	}

	offset := uint16(len(b.data))
	b.data = binary.BigEndian.AppendUint16(b.data, uint16(len(key)))
	b.data = append(b.data, key...)
	b.data = binary.BigEndian.AppendUint16(b.data, uint16(len(value)))
	b.data = append(b.data, value...)
	b.offsets = append(b.offsets, offset)

	if len(b.offsets) == 1 {
		b.firstKey = key.Clone()
	}
	b.lastKey = key.Clone()
	return true
}

// Build finalizes the accumulated entries into an immutable Block. The builder retains its
// state and may keep accumulating afterwards, but callers of SsTableBuilder always discard a
// builder immediately after Build per spec.md §4.6.
func (b *Builder) Build() *Block {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	offsets := make([]uint16, len(b.offsets))
	copy(offsets, b.offsets)
	return &Block{data: data, offsets: offsets}
}
