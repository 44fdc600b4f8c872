// Package sstable implements the immutable on-disk sorted string table: an ordered sequence of
// blocks plus a block-meta index, an optional Bloom filter, and a footer that bootstraps the
// reader (spec.md §4.5, §6).
package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/driftkv/lsmsst/pkg/block"
	"github.com/driftkv/lsmsst/pkg/cache"
	"github.com/driftkv/lsmsst/pkg/filter"
	"github.com/driftkv/lsmsst/pkg/kv"
)

const footerIntSize = 4 // offset fields in the footer are u32

var (
	// ErrCorruptFooter is returned when the trailing footer region cannot be parsed.
	ErrCorruptFooter = errors.New("corrupt sstable footer")
	// ErrNoSuchBlock is returned when a block index is out of range.
	ErrNoSuchBlock = errors.New("no such block")
	// ErrCacheLoadFailed wraps an error returned by the block cache's loader.
	ErrCacheLoadFailed = errors.New("block cache load failed")
)

var nextSstID atomic.Uint64

// NextID returns a process-unique SST id, suitable for keying a shared BlockCache (spec.md §3:
// "SST id (process-unique integer)").
func NextID() uint64 {
	return nextSstID.Add(1)
}

// SsTable is an immutable, read-only handle on a sorted string table file. It is safe to share
// by reference across goroutines: its fields do not change after Open/build.
type SsTable struct {
	id    uint64
	file  *os.File
	metas []BlockMeta

	metaOffset  uint32
	bloomOffset uint32
	bloom       *filter.BloomFilter // nil if the table was built with no bloom filter

	cache *cache.BlockCache[*block.Block] // nil disables read-through caching

	firstKey kv.Owned
	lastKey  kv.Owned
}

// Open reads path's footer, meta index, and Bloom filter into memory and returns a ready-to-use
// SsTable. blockCache may be nil, in which case ReadBlockCached falls back to always reading
// through to disk.
func Open(path string, id uint64, blockCache *cache.BlockCache[*block.Block]) (*SsTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to open %q: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("sstable: failed to stat %q: %w", path, err)
	}
	size := info.Size()
	if size < footerIntSize*2 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: file of %d bytes too short for a footer", ErrCorruptFooter, size)
	}

	bloomOffset, err := readU32At(file, size-footerIntSize)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %w", ErrCorruptFooter, err)
	}
	if int64(bloomOffset) > size-footerIntSize {
		_ = file.Close()
		return nil, fmt.Errorf("%w: bloom_offset %d exceeds file size", ErrCorruptFooter, bloomOffset)
	}
	bloomRaw, err := readRange(file, int64(bloomOffset), size-footerIntSize)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("sstable: failed to read bloom filter: %w", err)
	}
	bloom, err := filter.Decode(bloomRaw)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: bloom filter: %w", ErrCorruptFooter, err)
	}

	if int64(bloomOffset) < footerIntSize {
		_ = file.Close()
		return nil, fmt.Errorf("%w: bloom_offset %d leaves no room for meta_offset", ErrCorruptFooter, bloomOffset)
	}
	metaOffset, err := readU32At(file, int64(bloomOffset)-footerIntSize)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %w", ErrCorruptFooter, err)
	}
	if int64(metaOffset) > int64(bloomOffset)-footerIntSize {
		_ = file.Close()
		return nil, fmt.Errorf("%w: meta_offset %d exceeds bloom region start", ErrCorruptFooter, metaOffset)
	}
	metaRaw, err := readRange(file, int64(metaOffset), int64(bloomOffset)-footerIntSize)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("sstable: failed to read meta index: %w", err)
	}
	metas, err := DecodeMetaIndex(metaRaw)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if len(metas) == 0 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: meta index has no blocks", ErrCorruptMeta)
	}

	return &SsTable{
		id:          id,
		file:        file,
		metas:       metas,
		metaOffset:  metaOffset,
		bloomOffset: bloomOffset,
		bloom:       bloom,
		cache:       blockCache,
		firstKey:    metas[0].FirstKey.Clone(),
		lastKey:     metas[len(metas)-1].LastKey.Clone(),
	}, nil
}

// ID returns the SsTable's process-unique id, used as the SstID half of BlockCache keys.
func (t *SsTable) ID() uint64 {
	return t.id
}

// FirstKey returns the smallest key stored in the table.
func (t *SsTable) FirstKey() kv.Key {
	return t.firstKey.Bytes()
}

// LastKey returns the largest key stored in the table.
func (t *SsTable) LastKey() kv.Key {
	return t.lastKey.Bytes()
}

// NumBlocks returns the number of data blocks in the table.
func (t *SsTable) NumBlocks() int {
	return len(t.metas)
}

// FindBlockIdx returns the smallest block index i such that metas[i].LastKey >= key. If key
// exceeds every block's last key, it returns the last block's index (spec.md §4.5); the caller's
// iterator then becomes invalid on seek.
func (t *SsTable) FindBlockIdx(key kv.Key) int {
	idx := sort.Search(len(t.metas), func(i int) bool {
		return !kv.Less(t.metas[i].LastKey.Bytes(), key)
	})
	if idx == len(t.metas) {
		return len(t.metas) - 1
	}
	return idx
}

// MayContain reports whether key might be present via the table's Bloom filter. A table built
// with no filter always returns true, deferring to an actual block read.
func (t *SsTable) MayContain(key kv.Key) bool {
	if t.bloom == nil {
		return true
	}
	return t.bloom.MayContain(filter.Fingerprint32(key))
}

// ReadBlock reads and decodes block idx directly from disk, bypassing the cache.
func (t *SsTable) ReadBlock(idx int) (*block.Block, error) {
	if idx < 0 || idx >= len(t.metas) {
		return nil, fmt.Errorf("%w: index %d, have %d blocks", ErrNoSuchBlock, idx, len(t.metas))
	}
	start := int64(t.metas[idx].Offset)
	end := int64(t.metaOffset)
	if idx+1 < len(t.metas) {
		end = int64(t.metas[idx+1].Offset)
	}
	raw, err := readRange(t.file, start, end)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to read block %d: %w", idx, err)
	}
	blk, err := block.Decode(raw)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// ReadBlockCached returns block idx, keyed in the shared cache by (sst_id, idx), performing at
// most one concurrent decode per key (spec.md §4.5, §5). With no cache configured it always reads
// through to disk.
func (t *SsTable) ReadBlockCached(idx int) (*block.Block, error) {
	if t.cache == nil {
		return t.ReadBlock(idx)
	}
	blk, err := t.cache.TryGetWith(cache.BlockKey{SstID: t.id, BlockIdx: idx}, func() (*block.Block, error) {
		return t.ReadBlock(idx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheLoadFailed, err)
	}
	return blk, nil
}

// Get returns the value stored for key, and whether it was found. It bounds-checks against the
// table's first/last key and consults the Bloom filter before touching any block (spec.md §12):
// both are cheap rejections that avoid a block read entirely.
func (t *SsTable) Get(key kv.Key) ([]byte, bool, error) {
	if kv.Less(key, t.firstKey.Bytes()) || kv.Less(t.lastKey.Bytes(), key) {
		return nil, false, nil
	}
	if !t.MayContain(key) {
		return nil, false, nil
	}

	idx := t.FindBlockIdx(key)
	blk, err := t.ReadBlockCached(idx)
	if err != nil {
		return nil, false, err
	}
	it := block.NewIterator(blk)
	it.SeekToKey(key)
	if !it.IsValid() || !kv.Equal(it.Key(), key) {
		return nil, false, nil
	}
	value := it.Value()
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Close releases the underlying file handle.
func (t *SsTable) Close() error {
	return t.file.Close()
}

func readU32At(file *os.File, offset int64) (uint32, error) {
	var buf [4]byte
	if _, err := file.ReadAt(buf[:], offset); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readRange(file *os.File, start, end int64) ([]byte, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range [%d, %d)", start, end)
	}
	buf := make([]byte, end-start)
	if _, err := file.ReadAt(buf, start); err != nil {
		return nil, err
	}
	return buf, nil
}
