package cachedstore

import (
	"context"
	"time"

	"github.com/discochess/bucketstore/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store wraps another Store with a row cache.
//
// Reads go through the cache. Every mutation is written to the underlying
// store first and then invalidates the affected rows, so the cache never
// serves a payload older than the last completed write. Streams bypass the
// cache.
type Store struct {
	underlying store.Store
	backend    Backend
}

// New creates a new cached store wrapping the given store.
func New(underlying store.Store, backend Backend) *Store {
	return &Store{
		underlying: underlying,
		backend:    backend,
	}
}

// Select reads a row payload, checking the cache first.
func (s *Store) Select(ctx context.Context, bucketID uint32) ([]byte, error) {
	if data, ok := s.backend.Get(bucketID); ok {
		return data, nil
	}

	// Cache miss - read from underlying store.
	data, err := s.underlying.Select(ctx, bucketID)
	if err != nil {
		return nil, err
	}

	s.backend.Set(bucketID, data)
	return data, nil
}

// Upsert writes through and invalidates the row.
func (s *Store) Upsert(ctx context.Context, row store.Row) error {
	defer s.backend.Remove(row.BucketID)
	return s.underlying.Upsert(ctx, row)
}

// Update writes through and invalidates the row.
func (s *Store) Update(ctx context.Context, row store.Row) error {
	defer s.backend.Remove(row.BucketID)
	return s.underlying.Update(ctx, row)
}

// Delete removes the row and invalidates it.
func (s *Store) Delete(ctx context.Context, bucketID uint32) error {
	defer s.backend.Remove(bucketID)
	return s.underlying.Delete(ctx, bucketID)
}

// BatchUpdate writes through and invalidates every row in the batch.
func (s *Store) BatchUpdate(ctx context.Context, rows []store.Row) error {
	defer func() {
		for _, r := range rows {
			s.backend.Remove(r.BucketID)
		}
	}()
	return s.underlying.BatchUpdate(ctx, rows)
}

// BatchDelete removes rows and invalidates them.
func (s *Store) BatchDelete(ctx context.Context, bucketIDs []uint32) error {
	defer func() {
		for _, id := range bucketIDs {
			s.backend.Remove(id)
		}
	}()
	return s.underlying.BatchDelete(ctx, bucketIDs)
}

// StreamAll streams from the underlying store.
func (s *Store) StreamAll(ctx context.Context) (store.Rows, error) {
	return s.underlying.StreamAll(ctx)
}

// StreamExpired streams from the underlying store.
func (s *Store) StreamExpired(ctx context.Context, asOf time.Time) (store.Rows, error) {
	return s.underlying.StreamExpired(ctx, asOf)
}

// Truncate empties the underlying store and the cache.
func (s *Store) Truncate(ctx context.Context) error {
	defer s.backend.Purge()
	return s.underlying.Truncate(ctx)
}

// Close closes the underlying store.
func (s *Store) Close() error {
	s.backend.Purge()
	return s.underlying.Close()
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	return s.backend.Stats()
}
