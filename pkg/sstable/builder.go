package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftkv/lsmsst/pkg/block"
	"github.com/driftkv/lsmsst/pkg/cache"
	"github.com/driftkv/lsmsst/pkg/filter"
	"github.com/driftkv/lsmsst/pkg/klog"
	"github.com/driftkv/lsmsst/pkg/kv"
)

// bloomFalsePositiveRate is the target false-positive rate every built table's Bloom filter is
// sized for (spec.md §4.6: "bits_per_key(n, 0.01)").
const bloomFalsePositiveRate = 0.01

// Builder streams entries into Blocks under a target size, flushing each finished Block into the
// table's data region, and produces a finished SsTable file on Build (spec.md §4.6).
type Builder struct {
	blockTargetSize int

	data  []byte
	metas []BlockMeta

	blockBuilder *block.Builder
	fingerprints []uint32

	firstKey kv.Owned
	lastKey  kv.Owned
}

// NewBuilder returns an empty Builder whose blocks target at most blockTargetSize bytes each.
func NewBuilder(blockTargetSize int) *Builder {
	return &Builder{
		blockTargetSize: blockTargetSize,
		blockBuilder:    block.NewBuilder(blockTargetSize),
	}
}

// Add appends (key, value) in strictly ascending key order across the entire table's lifetime.
// It flushes the current block when the block builder rejects the entry (spec.md §4.6).
func (b *Builder) Add(key kv.Key, value []byte) {
	if !b.blockBuilder.Add(key, value) {
		b.flushBlock()
		if !b.blockBuilder.Add(key, value) {
			klog.Invariant("sstable", "fresh_builder_rejected_entry",
				"A freshly reset block builder rejected its first entry.", "keyLen", len(key))
		}
	}
	b.fingerprints = append(b.fingerprints, filter.Fingerprint32(key))
	if b.firstKey == nil {
		b.firstKey = key.Clone()
	}
	b.lastKey = key.Clone()
}

// EstimatedSize returns the number of bytes written to the table's data region so far, excluding
// meta/bloom/footer (spec.md §4.6: "meta is small relative to data").
func (b *Builder) EstimatedSize() int {
	return len(b.data)
}

// flushBlock finalizes the current block builder into the data region, appending its BlockMeta,
// then replaces it with a fresh builder.
func (b *Builder) flushBlock() {
	if b.blockBuilder.IsEmpty() {
		return
	}
	meta := BlockMeta{
		Offset:   uint32(len(b.data)),
		FirstKey: b.blockBuilder.FirstKey().Clone(),
		LastKey:  b.blockBuilder.LastKey().Clone(),
	}
	blk := b.blockBuilder.Build()
	b.metas = append(b.metas, meta)
	b.data = append(b.data, blk.Encode()...)
	b.blockBuilder = block.NewBuilder(b.blockTargetSize)
}

// Build finalizes the trailing block, writes the meta index, Bloom filter, and footer, fsyncs the
// file to path, reopens it read-only, and returns the resulting SsTable (spec.md §4.6).
// The write goes through a temp file plus atomic rename so a reader never observes a partially
// written table.
func (b *Builder) Build(id uint64, blockCache *cache.BlockCache[*block.Block], path string) (*SsTable, error) {
	b.flushBlock()
	if len(b.metas) == 0 {
		return nil, errors.New("sstable: cannot build from zero entries")
	}

	metaOffset := uint32(len(b.data))
	b.data = append(b.data, EncodeMetaIndex(b.metas)...)
	b.data = binary.BigEndian.AppendUint32(b.data, metaOffset)

	bloomOffset := uint32(len(b.data))
	bf := filter.Build(b.fingerprints, filter.BitsPerKey(bloomFalsePositiveRate))
	b.data = append(b.data, bf.Encode()...)
	b.data = binary.BigEndian.AppendUint32(b.data, bloomOffset)

	if err := b.writeFile(path); err != nil {
		return nil, err
	}
	return Open(path, id, blockCache)
}

// writeFile writes b.data to a temp file in path's directory, fsyncs it, then atomically renames
// it to path, so a crash never leaves a partially written SST visible at its final name.
func (b *Builder) writeFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sstable: failed to create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "sstable_*.tmp")
	if err != nil {
		return fmt.Errorf("sstable: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(b.data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sstable: failed to write data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sstable: failed to fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sstable: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("sstable: failed to rename %q to %q: %w", tmpPath, path, err)
	}
	return nil
}
