// Package block implements the fixed-target-size sorted key-value container that is the smallest
// unit of read and caching in an SSTable (spec.md §4.1).
//
// Encoding (big-endian throughout):
//
//	data:    (key_len:u16 ‖ key ‖ value_len:u16 ‖ value) for each entry, in order
//	offsets: entry_start_offset:u16, one per entry, relative to the start of data
//	trailer: entry_count:u16
package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/driftkv/lsmsst/pkg/kv"
)

// ErrCorruptBlock is returned when a byte slice does not decode to a well-formed Block: a
// trailer shorter than 2 bytes, a claimed entry count that doesn't fit in the remaining bytes, or
// an offset that doesn't point at a valid entry header.
var ErrCorruptBlock = errors.New("corrupt block")

const (
	trailerSize = 2 // entry_count:u16
	offsetSize  = 2 // one entry offset:u16
	headerSize  = 4 // key_len:u16 + value_len:u16
)

// Block is a sorted, contiguous run of entries plus a parallel offset array. It is immutable
// once constructed (by Decode or by Builder.Build) and safe to share across iterators and a
// cache by read-only reference.
type Block struct {
	data    []byte   // key_len|key|value_len|value, repeated, in key order
	offsets []uint16 // offsets[i] is the byte position of entry i within data
}

// NumEntries returns the number of entries in the block.
func (b *Block) NumEntries() int {
	return len(b.offsets)
}

// EncodedSize returns the length of Encode()'s output without materializing it.
func (b *Block) EncodedSize() int {
	return len(b.data) + offsetSize*len(b.offsets) + trailerSize
}

// Encode serializes the block to its on-disk byte representation.
func (b *Block) Encode() []byte {
	out := make([]byte, 0, b.EncodedSize())
	out = append(out, b.data...)
	for _, off := range b.offsets {
		out = binary.BigEndian.AppendUint16(out, off)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.offsets)))
	return out
}

// Decode parses a block from its on-disk byte representation.
func Decode(raw []byte) (*Block, error) {
	if len(raw) < trailerSize {
		return nil, fmt.Errorf("%w: block of %d bytes too short for trailer", ErrCorruptBlock, len(raw))
	}
	entryCount := int(binary.BigEndian.Uint16(raw[len(raw)-trailerSize:]))

	offRegionEnd := len(raw) - trailerSize
	offRegionStart := offRegionEnd - offsetSize*entryCount
	if offRegionStart < 0 {
		return nil, fmt.Errorf("%w: claimed entry count %d exceeds available bytes", ErrCorruptBlock, entryCount)
	}

	offsets := make([]uint16, entryCount)
	for i := range offsets {
		off := offRegionStart + offsetSize*i
		offsets[i] = binary.BigEndian.Uint16(raw[off : off+offsetSize])
	}
	data := raw[:offRegionStart]

	blk := &Block{data: data, offsets: offsets}
	if err := blk.validate(); err != nil {
		return nil, err
	}
	return blk, nil
}

// validate checks the invariants spec.md §4.1 requires of a decoded block: offsets[0] == 0,
// offsets strictly increasing, and every offset points at a decodable entry header.
func (b *Block) validate() error {
	for i, off := range b.offsets {
		if i == 0 {
			if off != 0 {
				return fmt.Errorf("%w: first entry offset is %d, want 0", ErrCorruptBlock, off)
			}
		} else if off <= b.offsets[i-1] {
			return fmt.Errorf("%w: offsets are not strictly increasing at entry %d", ErrCorruptBlock, i)
		}
		if _, _, _, err := b.decodeEntryAt(int(off)); err != nil {
			return err
		}
	}
	return nil
}

// decodeEntryAt parses the entry header and slices at byte offset off within b.data, returning
// the key, and the [start,end) byte range of the value within b.data.
func (b *Block) decodeEntryAt(off int) (key kv.Key, valStart, valEnd int, err error) {
	if off+headerSize > len(b.data) {
		return nil, 0, 0, fmt.Errorf("%w: entry header at offset %d exceeds data region", ErrCorruptBlock, off)
	}
	keyLen := int(binary.BigEndian.Uint16(b.data[off : off+2]))
	keyStart := off + 2
	keyEnd := keyStart + keyLen
	if keyEnd+2 > len(b.data) {
		return nil, 0, 0, fmt.Errorf("%w: entry key at offset %d exceeds data region", ErrCorruptBlock, off)
	}
	valLen := int(binary.BigEndian.Uint16(b.data[keyEnd : keyEnd+2]))
	valStart = keyEnd + 2
	valEnd = valStart + valLen
	if valEnd > len(b.data) {
		return nil, 0, 0, fmt.Errorf("%w: entry value at offset %d exceeds data region", ErrCorruptBlock, off)
	}
	return kv.Key(b.data[keyStart:keyEnd]), valStart, valEnd, nil
}

// keyAt returns only the key at entry idx (the entry's value bounds are still checked, but the
// value range is not returned); used by Iterator.SeekToKey's binary search.
func (b *Block) keyAt(idx int) (kv.Key, error) {
	key, _, _, err := b.decodeEntryAt(int(b.offsets[idx]))
	return key, err
}
