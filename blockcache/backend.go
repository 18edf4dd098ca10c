package blockcache

// Backend is the file-manager collaborator the cache writes through on
// coalesced flush. The cache never reads from a Backend itself — a read
// miss is reported to the caller, who is expected to fetch the block and
// install it with Write(..., Clean).
//
// BCache/SetBCache give the file registry a place to stash its back-pointer
// so repeat lookups for the same backend skip the registry's hash lookup.
type Backend interface {
	// Name identifies the backend for the file registry's lookup table.
	// Two backends with equal Name are treated as the same cache entry.
	Name() string

	// PWrite writes buf at the given byte offset. It must write all of
	// buf or return an error; a short write without an error is a
	// violation of the contract and triggers a fatal assertion in the
	// eviction engine.
	PWrite(buf []byte, offset int64) (int, error)

	// BCache returns the opaque back-pointer previously set by
	// SetBCache, or nil if none has been set yet.
	BCache() any

	// SetBCache stores the registry's back-pointer for this backend.
	SetBCache(v any)
}
