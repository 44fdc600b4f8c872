package filter

import "github.com/cespare/xxhash/v2"

// Fingerprint32 computes the opaque 32-bit key fingerprint the Bloom filter is built and queried
// with (spec.md §6: "any stable 32-bit hash; must match between build and query"). xxhash is the
// project's hash of choice elsewhere (pkg/cache's shard selection), so it's reused here rather
// than introducing a second hash family.
func Fingerprint32(key []byte) uint32 {
	h := xxhash.Sum64(key)
	// Fold the 64-bit digest down to 32 bits instead of truncating, so both halves of the
	// digest influence the fingerprint.
	return uint32(h) ^ uint32(h>>32)
}
