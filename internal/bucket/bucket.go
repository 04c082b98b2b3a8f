// Package bucket implements the unit of physical storage: a set of cache
// entries whose keys map to the same bucket id, persisted as a single row.
package bucket

import (
	"sort"
	"time"
)

// NoExpiration is the row-level earliest expiration of a bucket whose
// entries never expire.
const NoExpiration int64 = -1

// Entry is one cache entry as persisted.
// A zero Expiration means the entry never expires.
type Entry struct {
	Key        []byte
	Value      []byte
	Expiration time.Time
}

// IsExpired reports whether the entry has expired at now.
func (e Entry) IsExpired(now time.Time) bool {
	return !e.Expiration.IsZero() && !now.Before(e.Expiration)
}

// Bucket holds every entry whose key maps to ID.
// A Bucket is not safe for concurrent use; callers serialize access through
// the bucket's stripe lock.
type Bucket struct {
	ID uint32

	entries  map[string]Entry
	earliest time.Time
}

// New creates an empty bucket.
func New(id uint32) *Bucket {
	return &Bucket{ID: id, entries: make(map[string]Entry)}
}

// Get returns the entry for key unless it is absent or expired at now.
func (b *Bucket) Get(key []byte, now time.Time) (Entry, bool) {
	e, ok := b.entries[string(key)]
	if !ok || e.IsExpired(now) {
		return Entry{}, false
	}
	return e, true
}

// Contains reports whether a live entry for key exists at now.
func (b *Bucket) Contains(key []byte, now time.Time) bool {
	_, ok := b.Get(key, now)
	return ok
}

// Put inserts or replaces the entry for e.Key.
func (b *Bucket) Put(e Entry) {
	b.entries[string(e.Key)] = e
	b.recompute()
}

// Remove deletes key and reports whether it was present.
func (b *Bucket) Remove(key []byte) bool {
	if _, ok := b.entries[string(key)]; !ok {
		return false
	}
	delete(b.entries, string(key))
	b.recompute()
	return true
}

// RemoveExpired drops every entry expired at now and returns their keys.
func (b *Bucket) RemoveExpired(now time.Time) [][]byte {
	var removed [][]byte
	for k, e := range b.entries {
		if e.IsExpired(now) {
			delete(b.entries, k)
			removed = append(removed, e.Key)
		}
	}
	if len(removed) > 0 {
		b.recompute()
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (b *Bucket) Len() int {
	return len(b.entries)
}

// IsEmpty reports whether the bucket holds no entries.
// Empty buckets are deleted rather than persisted.
func (b *Bucket) IsEmpty() bool {
	return len(b.entries) == 0
}

// Entries returns the entries sorted by key.
func (b *Bucket) Entries() []Entry {
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Key) < string(out[j].Key)
	})
	return out
}

// EarliestExpiration returns the minimum expiration across all entries.
// ok is false when no entry expires.
func (b *Bucket) EarliestExpiration() (t time.Time, ok bool) {
	return b.earliest, !b.earliest.IsZero()
}

// EarliestExpirationMillis returns EarliestExpiration in unix milliseconds,
// or NoExpiration. This is the value stored in the row's expiration column.
func (b *Bucket) EarliestExpirationMillis() int64 {
	if b.earliest.IsZero() {
		return NoExpiration
	}
	return b.earliest.UnixMilli()
}

func (b *Bucket) recompute() {
	var earliest time.Time
	for _, e := range b.entries {
		if e.Expiration.IsZero() {
			continue
		}
		if earliest.IsZero() || e.Expiration.Before(earliest) {
			earliest = e.Expiration
		}
	}
	b.earliest = earliest
}
