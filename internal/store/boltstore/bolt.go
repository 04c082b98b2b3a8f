// Package boltstore implements a durable row store on bbolt.
//
// Two bbolt buckets are used:
//
//	rows:   [4-byte id]                    -> [8-byte expiration][payload]
//	expiry: [8-byte expiration][4-byte id] -> nil
//
// The expiry index holds only rows that expire, ordered by expiration, so
// StreamExpired is a prefix scan. Streams read in pages, each page in its own
// short read transaction: a bbolt read transaction held open across a
// concurrent write can deadlock the writer when the file needs remapping.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/discochess/bucketstore/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

var (
	rowsBucket   = []byte("rows")
	expiryBucket = []byte("expiry")
)

// DefaultPageSize is the number of rows read per stream transaction.
const DefaultPageSize = 256

// Store is a bbolt-backed row store.
type Store struct {
	db       *bolt.DB
	pageSize int
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize sets the number of rows fetched per stream page.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Open creates or opens a bbolt database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	s := &Store{db: db, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		return createBuckets(tx)
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Select returns the payload of a row.
func (s *Store) Select(ctx context.Context, bucketID uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var payload []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rowsBucket).Get(rowKey(bucketID))
		if v == nil {
			return store.ErrNotFound
		}
		_, p := splitValue(v)
		payload = bytes.Clone(p)
		return nil
	})
	return payload, err
}

// Upsert inserts or replaces a row.
func (s *Store) Upsert(ctx context.Context, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, row, false)
	})
}

// Update replaces an existing row.
func (s *Store) Update(ctx context.Context, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, row, true)
	})
}

// Delete removes a row.
func (s *Store) Delete(ctx context.Context, bucketID uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return remove(tx, bucketID)
	})
}

// BatchUpdate replaces several rows in one transaction.
// Rows deleted in the meantime are skipped.
func (s *Store) BatchUpdate(ctx context.Context, rows []store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, row := range rows {
			if err := put(tx, row, true); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

// BatchDelete removes several rows in one transaction.
func (s *Store) BatchDelete(ctx context.Context, bucketIDs []uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, id := range bucketIDs {
			if err := remove(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// StreamAll pages through every row in bucket id order.
func (s *Store) StreamAll(ctx context.Context) (store.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pagedRows{ctx: ctx, fetch: s.fetchAll}, nil
}

// StreamExpired pages through the expiry index up to asOf.
func (s *Store) StreamExpired(ctx context.Context, asOf time.Time) (store.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := asOf.UnixMilli()
	return &pagedRows{ctx: ctx, fetch: func(after []byte) ([]store.Row, []byte, error) {
		return s.fetchExpired(after, limit)
	}}, nil
}

// Truncate removes every row.
func (s *Store) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{rowsBucket, expiryBucket} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
		return createBuckets(tx)
	})
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// fetchAll reads one page of rows with keys greater than after.
func (s *Store) fetchAll(after []byte) ([]store.Row, []byte, error) {
	var (
		rows []store.Row
		last []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rowsBucket).Cursor()
		k, v := seekAfter(c, after)
		for ; k != nil && len(rows) < s.pageSize; k, v = c.Next() {
			exp, payload := splitValue(v)
			rows = append(rows, store.Row{
				BucketID:           binary.BigEndian.Uint32(k),
				Payload:            bytes.Clone(payload),
				EarliestExpiration: exp,
			})
			last = bytes.Clone(k)
		}
		return nil
	})
	return rows, last, err
}

// fetchExpired reads one page of expiry index entries at or below limit.
func (s *Store) fetchExpired(after []byte, limit int64) ([]store.Row, []byte, error) {
	var (
		rows []store.Row
		last []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(rowsBucket)
		c := tx.Bucket(expiryBucket).Cursor()
		k, _ := seekAfter(c, after)
		for ; k != nil && len(rows) < s.pageSize; k, _ = c.Next() {
			if int64(binary.BigEndian.Uint64(k[:8])) > limit {
				break
			}
			last = bytes.Clone(k)
			id := binary.BigEndian.Uint32(k[8:])
			v := data.Get(rowKey(id))
			if v == nil {
				continue
			}
			exp, payload := splitValue(v)
			rows = append(rows, store.Row{BucketID: id, Payload: bytes.Clone(payload), EarliestExpiration: exp})
		}
		return nil
	})
	return rows, last, err
}

func createBuckets(tx *bolt.Tx) error {
	for _, name := range [][]byte{rowsBucket, expiryBucket} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("creating bucket %s: %w", name, err)
		}
	}
	return nil
}

func put(tx *bolt.Tx, row store.Row, mustExist bool) error {
	rows := tx.Bucket(rowsBucket)
	expiry := tx.Bucket(expiryBucket)
	key := rowKey(row.BucketID)

	if old := rows.Get(key); old != nil {
		oldExp, _ := splitValue(old)
		if oldExp != store.NoExpiration {
			if err := expiry.Delete(expiryKey(oldExp, row.BucketID)); err != nil {
				return err
			}
		}
	} else if mustExist {
		return store.ErrNotFound
	}

	value := make([]byte, 8+len(row.Payload))
	binary.BigEndian.PutUint64(value, uint64(row.EarliestExpiration))
	copy(value[8:], row.Payload)
	if err := rows.Put(key, value); err != nil {
		return err
	}
	if row.EarliestExpiration != store.NoExpiration {
		return expiry.Put(expiryKey(row.EarliestExpiration, row.BucketID), []byte{})
	}
	return nil
}

func remove(tx *bolt.Tx, bucketID uint32) error {
	rows := tx.Bucket(rowsBucket)
	key := rowKey(bucketID)
	old := rows.Get(key)
	if old == nil {
		return nil
	}
	if exp, _ := splitValue(old); exp != store.NoExpiration {
		if err := tx.Bucket(expiryBucket).Delete(expiryKey(exp, bucketID)); err != nil {
			return err
		}
	}
	return rows.Delete(key)
}

func seekAfter(c *bolt.Cursor, after []byte) ([]byte, []byte) {
	if after == nil {
		return c.First()
	}
	k, v := c.Seek(after)
	if k != nil && bytes.Equal(k, after) {
		k, v = c.Next()
	}
	return k, v
}

func rowKey(id uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, id)
	return k
}

// expiryKey orders by expiration; expirations are non-negative unix millis.
func expiryKey(exp int64, id uint32) []byte {
	k := make([]byte, 12)
	binary.BigEndian.PutUint64(k, uint64(exp))
	binary.BigEndian.PutUint32(k[8:], id)
	return k
}

func splitValue(v []byte) (int64, []byte) {
	if len(v) < 8 {
		return store.NoExpiration, nil
	}
	return int64(binary.BigEndian.Uint64(v[:8])), v[8:]
}

// pagedRows walks a store page by page.
type pagedRows struct {
	ctx   context.Context
	fetch func(after []byte) ([]store.Row, []byte, error)

	page  []store.Row
	pos   int
	after []byte
	done  bool
	err   error
}

func (r *pagedRows) Next() bool {
	if r.err != nil {
		return false
	}
	if r.pos+1 < len(r.page) {
		r.pos++
		return true
	}
	for !r.done {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return false
		}
		page, last, err := r.fetch(r.after)
		if err != nil {
			r.err = fmt.Errorf("reading page: %w", err)
			return false
		}
		if last == nil {
			r.done = true
		}
		r.after = last
		if len(page) > 0 {
			r.page, r.pos = page, 0
			return true
		}
	}
	r.page, r.pos = nil, 0
	return false
}

func (r *pagedRows) Row() store.Row { return r.page[r.pos] }

func (r *pagedRows) Err() error { return r.err }

func (r *pagedRows) Close() error {
	r.done = true
	r.page = nil
	return nil
}
