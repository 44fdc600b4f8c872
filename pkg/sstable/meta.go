package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/driftkv/lsmsst/pkg/kv"
)

// ErrCorruptMeta is returned when the meta index region of an SSTable cannot be parsed.
var ErrCorruptMeta = errors.New("corrupt sstable meta index")

// BlockMeta describes one Block's location and key range within an SSTable (spec.md §3): the
// byte offset of the block within the file, and its first and last keys.
type BlockMeta struct {
	Offset   uint32
	FirstKey kv.Owned
	LastKey  kv.Owned
}

// encodeBlockMeta appends one BlockMeta record: offset:u32, first_key_len:u16, first_key,
// last_key_len:u16, last_key (spec.md §6).
func encodeBlockMeta(out []byte, m BlockMeta) []byte {
	out = binary.BigEndian.AppendUint32(out, m.Offset)
	out = binary.BigEndian.AppendUint16(out, uint16(len(m.FirstKey)))
	out = append(out, m.FirstKey...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(m.LastKey)))
	out = append(out, m.LastKey...)
	return out
}

// EncodeMetaIndex serializes a list of BlockMeta records in order.
func EncodeMetaIndex(metas []BlockMeta) []byte {
	out := make([]byte, 0, 64*len(metas))
	for _, m := range metas {
		out = encodeBlockMeta(out, m)
	}
	return out
}

// DecodeMetaIndex parses a meta index region back into its BlockMeta records. The region has no
// explicit count; the caller consumes records until raw is exhausted.
func DecodeMetaIndex(raw []byte) ([]BlockMeta, error) {
	var metas []BlockMeta
	for len(raw) > 0 {
		if len(raw) < 4+2 {
			return nil, fmt.Errorf("%w: truncated block meta record header", ErrCorruptMeta)
		}
		offset := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]

		firstKeyLen := int(binary.BigEndian.Uint16(raw[:2]))
		raw = raw[2:]
		if len(raw) < firstKeyLen+2 {
			return nil, fmt.Errorf("%w: truncated first_key", ErrCorruptMeta)
		}
		firstKey := kv.Owned(raw[:firstKeyLen])
		raw = raw[firstKeyLen:]

		lastKeyLen := int(binary.BigEndian.Uint16(raw[:2]))
		raw = raw[2:]
		if len(raw) < lastKeyLen {
			return nil, fmt.Errorf("%w: truncated last_key", ErrCorruptMeta)
		}
		lastKey := kv.Owned(raw[:lastKeyLen])
		raw = raw[lastKeyLen:]

		metas = append(metas, BlockMeta{Offset: offset, FirstKey: firstKey.Clone(), LastKey: lastKey.Clone()})
	}
	return metas, nil
}
