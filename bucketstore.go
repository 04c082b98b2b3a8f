// Package bucketstore persists cache entries into a bounded set of storage
// rows called buckets.
//
// Every key maps to a bucket id through a fixed hash mask, so many keys share
// one row. Foreground operations lock the bucket's stripe, read the row,
// mutate the decoded bucket and write it back. Purge removes expired entries
// in the background, skipping buckets that are busy instead of waiting.
//
// Example usage:
//
//	db, err := boltstore.Open("/var/lib/cache/buckets.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := bucketstore.New(
//	    bucketstore.WithConnectionFactory(pool.New(db, 8)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	err = s.Write(ctx, bucketstore.Entry{Key: []byte("k"), Value: []byte("v")})
//	e, err := s.Load(ctx, []byte("k"))
package bucketstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/bucketstore/internal/bucket"
	"github.com/discochess/bucketstore/internal/codec"
	"github.com/discochess/bucketstore/internal/keymap"
	"github.com/discochess/bucketstore/internal/lock"
	"github.com/discochess/bucketstore/internal/stats"
	"github.com/discochess/bucketstore/internal/store"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrNotFound indicates the key is absent or its entry has expired.
	ErrNotFound = errors.New("bucketstore: entry not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("bucketstore: store closed")

	// ErrNoConnectionFactory indicates no connection factory was provided.
	ErrNoConnectionFactory = errors.New("bucketstore: no connection factory provided")

	// ErrStoreUnavailable wraps failures of the underlying row store.
	ErrStoreUnavailable = errors.New("bucketstore: row store unavailable")

	// ErrCorruptData indicates a persisted bucket could not be decoded.
	ErrCorruptData = bucket.ErrCorruptData

	// ErrSerialization indicates entries could not be marshalled.
	ErrSerialization = bucket.ErrSerialization
)

// Entry is one cache entry. Key and Value are already marshalled by the
// owning cache. A zero Expiration means the entry never expires.
type Entry = bucket.Entry

// Store is the capability set of a bucket store.
type Store interface {
	Load(ctx context.Context, key []byte) (Entry, error)
	Contains(ctx context.Context, key []byte) (bool, error)
	Write(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key []byte) (bool, error)
	Clear(ctx context.Context) error
	Process(ctx context.Context, filter KeyFilter, fn ProcessFunc, opts ...ProcessOption) error
	Purge(ctx context.Context, listener PurgeListener) error
	Close() error
}

// Compile-time check that BucketStore implements Store.
var _ Store = (*BucketStore)(nil)

// BucketStore is a Store over a row store.
// A BucketStore is safe for concurrent use by multiple goroutines.
type BucketStore struct {
	conns          store.ConnectionFactory
	mapper         keymap.Mapper
	locks          *lock.Striped
	codec          *bucket.Codec
	compression    codec.Codec
	purgeBatchSize int
	parallelism    int
	stats          stats.Collector
	logger         *zap.Logger
	now            func() time.Time
	closed         atomic.Bool
}

// New creates a new BucketStore with the given options.
func New(opts ...Option) (*BucketStore, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.conns == nil {
		return nil, ErrNoConnectionFactory
	}

	s := &BucketStore{
		conns:          cfg.conns,
		mapper:         cfg.keyMapper,
		locks:          lock.NewStriped(cfg.concurrencyLevel),
		codec:          bucket.NewCodec(cfg.marshaller, cfg.compression),
		compression:    cfg.compression,
		purgeBatchSize: cfg.purgeBatchSize,
		parallelism:    cfg.parallelism,
		stats:          cfg.stats,
		logger:         cfg.logger.Named("bucketstore"),
		now:            cfg.now,
	}

	s.logger.Debug("store initialized",
		zap.String("keyMapper", s.mapper.Name()),
		zap.Int("stripes", s.locks.Stripes()),
		zap.String("marshaller", cfg.marshaller.Name()),
		zap.String("compression", cfg.compression.Name()),
	)

	return s, nil
}

// Load returns the live entry for key.
// Returns ErrNotFound if the key is absent or expired.
func (s *BucketStore) Load(ctx context.Context, key []byte) (Entry, error) {
	s.stats.IncCounter(stats.MetricLoads, 1)

	id := s.mapper.BucketID(key)
	release := s.locks.RLock(id)
	defer release()

	conn, done, err := s.acquire(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer done()

	b, err := s.readBucket(ctx, conn, id)
	if err != nil {
		return Entry{}, err
	}
	if b != nil {
		if e, ok := b.Get(key, s.now()); ok {
			s.stats.IncCounter(stats.MetricHits, 1)
			return e, nil
		}
	}

	s.stats.IncCounter(stats.MetricMisses, 1)
	return Entry{}, ErrNotFound
}

// Contains reports whether a live entry for key exists.
func (s *BucketStore) Contains(ctx context.Context, key []byte) (bool, error) {
	id := s.mapper.BucketID(key)
	release := s.locks.RLock(id)
	defer release()

	conn, done, err := s.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer done()

	b, err := s.readBucket(ctx, conn, id)
	if err != nil || b == nil {
		return false, err
	}
	return b.Contains(key, s.now()), nil
}

// Write stores e, replacing any entry with the same key.
// An entry that has already expired is deleted instead.
func (s *BucketStore) Write(ctx context.Context, e Entry) error {
	if e.IsExpired(s.now()) {
		_, err := s.Delete(ctx, e.Key)
		return err
	}

	id := s.mapper.BucketID(e.Key)
	release := s.locks.Lock(id)
	defer release()

	conn, done, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()

	b, err := s.readBucket(ctx, conn, id)
	if err != nil {
		return err
	}
	existed := b != nil
	if !existed {
		b = bucket.New(id)
	}
	b.Put(e)

	if err := s.persist(ctx, conn, b, existed); err != nil {
		return err
	}
	s.stats.IncCounter(stats.MetricWrites, 1)
	return nil
}

// Delete removes key and reports whether it was present.
// The bucket's row is deleted once its last entry is gone.
func (s *BucketStore) Delete(ctx context.Context, key []byte) (bool, error) {
	id := s.mapper.BucketID(key)
	release := s.locks.Lock(id)
	defer release()

	conn, done, err := s.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer done()

	b, err := s.readBucket(ctx, conn, id)
	if err != nil || b == nil {
		return false, err
	}
	if !b.Remove(key) {
		return false, nil
	}

	if err := s.persist(ctx, conn, b, true); err != nil {
		return false, err
	}
	s.stats.IncCounter(stats.MetricDeletes, 1)
	return true, nil
}

// Clear removes every row. It takes no bucket locks, so operations running
// concurrently may observe either side of the truncation.
func (s *BucketStore) Clear(ctx context.Context) error {
	conn, done, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := conn.Truncate(ctx); err != nil {
		return unavailable("truncating rows", err)
	}
	s.logger.Info("store cleared")
	return nil
}

// Close releases the connection factory.
// After Close, every operation returns ErrClosed.
func (s *BucketStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	if err := s.conns.Close(); err != nil {
		return fmt.Errorf("closing connection factory: %w", err)
	}
	return nil
}

// BucketID returns the bucket id key maps to.
func (s *BucketStore) BucketID(key []byte) uint32 {
	return s.mapper.BucketID(key)
}

// acquire obtains a connection. The returned done func releases it.
func (s *BucketStore) acquire(ctx context.Context) (store.Store, func(), error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}
	conn, err := s.conns.Acquire(ctx)
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			return nil, nil, ErrClosed
		}
		return nil, nil, unavailable("acquiring connection", err)
	}
	return conn, func() { s.conns.Release(conn) }, nil
}

// readBucket loads and decodes a bucket. A missing row yields nil, nil.
func (s *BucketStore) readBucket(ctx context.Context, conn store.Store, id uint32) (*bucket.Bucket, error) {
	payload, err := conn.Select(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("selecting bucket %08x", id), err)
	}
	return s.codec.Decode(id, payload)
}

// persist writes b back, deleting its row when it is empty.
// existed reports whether a row for b is already stored.
func (s *BucketStore) persist(ctx context.Context, conn store.Store, b *bucket.Bucket, existed bool) error {
	if b.IsEmpty() {
		if !existed {
			return nil
		}
		if err := conn.Delete(ctx, b.ID); err != nil {
			return unavailable(fmt.Sprintf("deleting bucket %08x", b.ID), err)
		}
		return nil
	}

	row, err := s.encodeRow(b)
	if err != nil {
		return err
	}
	if existed {
		err = conn.Update(ctx, row)
		if errors.Is(err, store.ErrNotFound) {
			// Removed by a concurrent Clear.
			err = conn.Upsert(ctx, row)
		}
	} else {
		err = conn.Upsert(ctx, row)
	}
	if err != nil {
		return unavailable(fmt.Sprintf("writing bucket %08x", b.ID), err)
	}
	return nil
}

func (s *BucketStore) encodeRow(b *bucket.Bucket) (store.Row, error) {
	payload, err := s.codec.Encode(b)
	if err != nil {
		return store.Row{}, err
	}
	return store.Row{
		BucketID:           b.ID,
		Payload:            payload,
		EarliestExpiration: b.EarliestExpirationMillis(),
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
