package blockcache

import "github.com/OneOfOne/xxhash"

// Hasher computes a 64-bit hash, used by the file registry to precompute and
// cache a filename hash on each per-file index record.
type Hasher interface {
	Sum64(data []byte) uint64
}

// xxHasher is the default Hasher.
type xxHasher struct{}

// NewXXHasher returns the default Hasher, backed by xxHash.
func NewXXHasher() Hasher {
	return xxHasher{}
}

func (xxHasher) Sum64(data []byte) uint64 {
	h := xxhash.New64()
	h.Write(data)
	return h.Sum64()
}
