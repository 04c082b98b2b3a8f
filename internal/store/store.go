// Package store defines the row-level storage contract the bucket engine
// persists into, and the connection factory it acquires storage through.
//
// Physical layout: one row per bucket, keyed by bucket id, carrying an opaque
// binary payload and the bucket's earliest expiration (unix milliseconds,
// NoExpiration when nothing in the bucket expires). The expiration column is
// what StreamExpired filters on.
package store

import (
	"context"
	"errors"
	"time"
)

// NoExpiration marks a row whose entries never expire.
const NoExpiration int64 = -1

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: row not found")

	// ErrClosed is returned by operations on a closed store or pool.
	ErrClosed = errors.New("store: closed")
)

// Row is one persisted bucket.
type Row struct {
	BucketID           uint32
	Payload            []byte
	EarliestExpiration int64
}

// ExpiredAt reports whether the row's earliest expiration has passed at t.
func (r Row) ExpiredAt(t time.Time) bool {
	return r.EarliestExpiration != NoExpiration && r.EarliestExpiration <= t.UnixMilli()
}

// Store is the row-level CRUD contract.
// Implementations must be safe for concurrent use, and an open Rows stream
// must not block writers on other goroutines.
type Store interface {
	// Select returns the payload of a row, or ErrNotFound.
	Select(ctx context.Context, bucketID uint32) ([]byte, error)

	// Upsert inserts the row or replaces an existing one.
	Upsert(ctx context.Context, row Row) error

	// Update replaces an existing row, or returns ErrNotFound.
	Update(ctx context.Context, row Row) error

	// Delete removes a row. Deleting a missing row is not an error.
	Delete(ctx context.Context, bucketID uint32) error

	// BatchUpdate replaces several existing rows.
	BatchUpdate(ctx context.Context, rows []Row) error

	// BatchDelete removes several rows.
	BatchDelete(ctx context.Context, bucketIDs []uint32) error

	// StreamAll returns a forward-only stream over every row.
	StreamAll(ctx context.Context) (Rows, error)

	// StreamExpired returns a forward-only stream over rows whose earliest
	// expiration is at or before asOf. Returning extra rows is allowed.
	StreamExpired(ctx context.Context, asOf time.Time) (Rows, error)

	// Truncate removes every row.
	Truncate(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Rows is a forward-only row cursor, used like sql.Rows.
//
//	for rows.Next() {
//	    row := rows.Row()
//	}
//	if err := rows.Err(); err != nil { ... }
type Rows interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// ConnectionFactory hands out storage connections. Acquire and Release must
// be safe to call concurrently; every successful Acquire is paired with
// exactly one Release.
type ConnectionFactory interface {
	Acquire(ctx context.Context) (Store, error)
	Release(conn Store)
	Close() error
}

// SliceRows adapts an in-memory snapshot to Rows.
type SliceRows struct {
	rows []Row
	pos  int
}

// NewSliceRows returns a cursor over rows.
func NewSliceRows(rows []Row) *SliceRows {
	return &SliceRows{rows: rows, pos: -1}
}

// Next advances the cursor.
func (r *SliceRows) Next() bool {
	if r.pos+1 >= len(r.rows) {
		r.pos = len(r.rows)
		return false
	}
	r.pos++
	return true
}

// Row returns the current row.
func (r *SliceRows) Row() Row { return r.rows[r.pos] }

// Err always returns nil.
func (r *SliceRows) Err() error { return nil }

// Close is a no-op.
func (r *SliceRows) Close() error { return nil }
