// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the library.
const (
	// Engine metrics.
	MetricLoads   = "bucketstore_loads_total"
	MetricHits    = "bucketstore_hits_total"
	MetricMisses  = "bucketstore_misses_total"
	MetricWrites  = "bucketstore_writes_total"
	MetricDeletes = "bucketstore_deletes_total"

	// Purge metrics.
	MetricPurgeRuns           = "bucketstore_purge_runs_total"
	MetricPurgedEntries       = "bucketstore_purged_entries_total"
	MetricPurgeSkipped        = "bucketstore_purge_skipped_total"
	MetricPurgeDeletedBuckets = "bucketstore_purge_deleted_buckets_total"
	MetricPurgeSeconds        = "bucketstore_purge_seconds"

	// Row cache metrics.
	MetricRowCacheHits   = "bucketstore_row_cache_hits_total"
	MetricRowCacheMisses = "bucketstore_row_cache_misses_total"
	MetricRowCacheSize   = "bucketstore_row_cache_size"
)

// Help returns the description of a known metric, or the name itself.
func Help(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

var help = map[string]string{
	MetricLoads:               "Entry loads issued against the store.",
	MetricHits:                "Loads that found a live entry.",
	MetricMisses:              "Loads that found nothing or an expired entry.",
	MetricWrites:              "Entries written.",
	MetricDeletes:             "Entries deleted.",
	MetricPurgeRuns:           "Completed purge passes.",
	MetricPurgedEntries:       "Expired entries removed by purge.",
	MetricPurgeSkipped:        "Buckets skipped by purge because their lock was busy.",
	MetricPurgeDeletedBuckets: "Rows deleted by purge after their bucket emptied.",
	MetricPurgeSeconds:        "Duration of purge passes in seconds.",
	MetricRowCacheHits:        "Row cache hits.",
	MetricRowCacheMisses:      "Row cache misses.",
	MetricRowCacheSize:        "Rows held by the row cache.",
}

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
