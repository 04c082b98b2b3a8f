// Package gcsstore implements a Google Cloud Storage row store: one object
// per bucket, with the earliest expiration kept in object metadata.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/discochess/bucketstore/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

const expirationMeta = "earliest-expiration"

// Store is a Google Cloud Storage row store.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// New creates a new GCS store.
// The bucket must already exist.
func New(ctx context.Context, bucketName string, opts ...Option) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := &Store{
		client: client,
		bucket: client.Bucket(bucketName),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = strings.TrimSuffix(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
	}
}

// Select downloads a row payload.
func (s *Store) Select(ctx context.Context, bucketID uint32) ([]byte, error) {
	reader, err := s.bucket.Object(s.rowKey(bucketID)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading row: %w", err)
	}
	return data, nil
}

// Upsert uploads a row.
func (s *Store) Upsert(ctx context.Context, row store.Row) error {
	w := s.bucket.Object(s.rowKey(row.BucketID)).NewWriter(ctx)
	w.Metadata = map[string]string{expirationMeta: strconv.FormatInt(row.EarliestExpiration, 10)}
	if _, err := w.Write(row.Payload); err != nil {
		w.Close()
		return fmt.Errorf("writing row: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing writer: %w", err)
	}
	return nil
}

// Update uploads a row that must already exist.
func (s *Store) Update(ctx context.Context, row store.Row) error {
	if _, err := s.bucket.Object(s.rowKey(row.BucketID)).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return store.ErrNotFound
		}
		return fmt.Errorf("checking row: %w", err)
	}
	return s.Upsert(ctx, row)
}

// Delete removes a row object. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, bucketID uint32) error {
	err := s.bucket.Object(s.rowKey(bucketID)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting row: %w", err)
	}
	return nil
}

// BatchUpdate uploads several existing rows.
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

// StreamAll lists row objects and downloads them lazily.
func (s *Store) StreamAll(ctx context.Context) (store.Rows, error) {
	return s.stream(ctx, func(store.Row) bool { return true }), nil
}

// StreamExpired yields rows expired at asOf. Listing carries object
// metadata, so unexpired rows are never downloaded.
func (s *Store) StreamExpired(ctx context.Context, asOf time.Time) (store.Rows, error) {
	return s.stream(ctx, func(r store.Row) bool { return r.ExpiredAt(asOf) }), nil
}

// Truncate deletes every row object under the prefix.
func (s *Store) Truncate(ctx context.Context) error {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix + "rows/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("listing rows: %w", err)
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("deleting row: %w", err)
		}
	}
}

// Close releases resources.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) stream(ctx context.Context, keep func(store.Row) bool) store.Rows {
	return &objectRows{
		ctx:   ctx,
		store: s,
		it:    s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix + "rows/"}),
		keep:  keep,
	}
}

// rowKey returns the full object key for a row.
func (s *Store) rowKey(bucketID uint32) string {
	return s.prefix + "rows/" + fmt.Sprintf("%08x", bucketID)
}

func (s *Store) parseRowKey(key string) (uint32, bool) {
	hex, ok := strings.CutPrefix(key, s.prefix+"rows/")
	if !ok || len(hex) != 8 {
		return 0, false
	}
	id, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

func parseExpiration(meta map[string]string) int64 {
	if v, ok := meta[expirationMeta]; ok {
		if exp, err := strconv.ParseInt(v, 10, 64); err == nil {
			return exp
		}
	}
	return store.NoExpiration
}

type objectRows struct {
	ctx   context.Context
	store *Store
	it    *storage.ObjectIterator
	keep  func(store.Row) bool

	cur  store.Row
	err  error
	done bool
}

func (r *objectRows) Next() bool {
	for !r.done && r.err == nil {
		attrs, err := r.it.Next()
		if errors.Is(err, iterator.Done) {
			r.done = true
			return false
		}
		if err != nil {
			r.err = fmt.Errorf("listing rows: %w", err)
			return false
		}

		id, ok := r.store.parseRowKey(attrs.Name)
		if !ok {
			continue
		}
		row := store.Row{BucketID: id, EarliestExpiration: parseExpiration(attrs.Metadata)}
		if !r.keep(row) {
			continue
		}
		payload, err := r.store.Select(r.ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			r.err = err
			return false
		}
		row.Payload = payload
		r.cur = row
		return true
	}
	return false
}

func (r *objectRows) Row() store.Row { return r.cur }

func (r *objectRows) Err() error { return r.err }

func (r *objectRows) Close() error {
	r.done = true
	return nil
}
