// Package memstore provides an in-memory row store, used in tests and by the
// in-memory fx module.
package memstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/discochess/bucketstore/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store is an in-memory row store.
// Payloads are copied on the way in and out so callers cannot mutate stored rows.
type Store struct {
	rows *xsync.MapOf[uint32, store.Row]
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{rows: xsync.NewMapOf[uint32, store.Row]()}
}

// Select returns a copy of the row payload.
func (s *Store) Select(ctx context.Context, bucketID uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, ok := s.rows.Load(bucketID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(row.Payload), nil
}

// Upsert inserts or replaces a row.
func (s *Store) Upsert(ctx context.Context, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row.Payload = clone(row.Payload)
	s.rows.Store(row.BucketID, row)
	return nil
}

// Update replaces an existing row.
func (s *Store) Update(ctx context.Context, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row.Payload = clone(row.Payload)
	var found bool
	s.rows.Compute(row.BucketID, func(old store.Row, loaded bool) (store.Row, bool) {
		found = loaded
		if !loaded {
			return old, true
		}
		return row, false
	})
	if !found {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a row.
func (s *Store) Delete(ctx context.Context, bucketID uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rows.Delete(bucketID)
	return nil
}

// BatchUpdate replaces several rows. Rows that no longer exist are skipped.
func (s *Store) BatchUpdate(ctx context.Context, rows []store.Row) error {
	for _, row := range rows {
		if err := s.Update(ctx, row); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// BatchDelete removes several rows.
func (s *Store) BatchDelete(ctx context.Context, bucketIDs []uint32) error {
	for _, id := range bucketIDs {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StreamAll returns a snapshot of every row ordered by bucket id.
func (s *Store) StreamAll(ctx context.Context) (store.Rows, error) {
	return s.snapshot(ctx, func(store.Row) bool { return true })
}

// StreamExpired returns a snapshot of rows expired at asOf.
func (s *Store) StreamExpired(ctx context.Context, asOf time.Time) (store.Rows, error) {
	return s.snapshot(ctx, func(r store.Row) bool { return r.ExpiredAt(asOf) })
}

// Truncate removes every row.
func (s *Store) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rows.Clear()
	return nil
}

// Len returns the number of rows.
func (s *Store) Len() int {
	return s.rows.Size()
}

// Row returns a copy of a row for test inspection.
func (s *Store) Row(bucketID uint32) (store.Row, bool) {
	row, ok := s.rows.Load(bucketID)
	row.Payload = clone(row.Payload)
	return row, ok
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) snapshot(ctx context.Context, keep func(store.Row) bool) (store.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []store.Row
	s.rows.Range(func(_ uint32, row store.Row) bool {
		if keep(row) {
			row.Payload = clone(row.Payload)
			rows = append(rows, row)
		}
		return true
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].BucketID < rows[j].BucketID })
	return store.NewSliceRows(rows), nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
