// Package cachedstore provides a read-through row cache over a store.Store.
package cachedstore

// Backend defines the interface for cache storage backends.
// Implementations handle storage and eviction strategy.
type Backend interface {
	// Get retrieves a cached row payload. Returns nil, false if not found.
	Get(bucketID uint32) ([]byte, bool)

	// Set stores a row payload in the cache.
	Set(bucketID uint32, payload []byte)

	// Remove invalidates a cached row.
	Remove(bucketID uint32)

	// Purge invalidates every cached row.
	Purge()

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int // Current number of entries
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
