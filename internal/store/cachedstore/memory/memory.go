// Package memory implements an in-memory cache backend.
package memory

import (
	"sync/atomic"

	"github.com/discochess/bucketstore/internal/stats"
	"github.com/discochess/bucketstore/internal/store/cachedstore"
	"github.com/discochess/bucketstore/internal/store/cachedstore/cachestrategy"
)

// Compile-time check that Backend implements cachedstore.Backend.
var _ cachedstore.Backend = (*Backend)(nil)

// Backend is a thread-safe in-memory cache backend.
type Backend struct {
	strategy  cachestrategy.Strategy
	collector stats.Collector

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new memory backend with the given eviction strategy.
// The collector is optional; if nil, a no-op collector is used.
func New(strategy cachestrategy.Strategy, collector stats.Collector) *Backend {
	if collector == nil {
		collector = stats.NewNoop()
	}
	return &Backend{
		strategy:  strategy,
		collector: collector,
	}
}

// Get retrieves a row payload from the cache.
func (b *Backend) Get(bucketID uint32) ([]byte, bool) {
	val, ok := b.strategy.Get(bucketID)
	if ok {
		b.hits.Add(1)
		b.collector.IncCounter(stats.MetricRowCacheHits, 1)
		return val, true
	}
	b.misses.Add(1)
	b.collector.IncCounter(stats.MetricRowCacheMisses, 1)
	return nil, false
}

// Set stores a row payload in the cache.
func (b *Backend) Set(bucketID uint32, payload []byte) {
	b.strategy.Add(bucketID, payload)
	b.collector.SetGauge(stats.MetricRowCacheSize, int64(b.strategy.Len()))
}

// Remove invalidates a cached row.
func (b *Backend) Remove(bucketID uint32) {
	if b.strategy.Remove(bucketID) {
		b.collector.SetGauge(stats.MetricRowCacheSize, int64(b.strategy.Len()))
	}
}

// Purge invalidates every cached row.
func (b *Backend) Purge() {
	b.strategy.Purge()
	b.collector.SetGauge(stats.MetricRowCacheSize, 0)
}

// Stats returns current cache statistics.
func (b *Backend) Stats() cachedstore.Stats {
	return cachedstore.Stats{
		Hits:   b.hits.Load(),
		Misses: b.misses.Load(),
		Size:   b.strategy.Len(),
	}
}

// Len returns the number of items in the cache.
func (b *Backend) Len() int {
	return b.strategy.Len()
}
