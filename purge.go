package bucketstore

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/bucketstore/internal/lock"
	"github.com/discochess/bucketstore/internal/parallel"
	"github.com/discochess/bucketstore/internal/stats"
	"github.com/discochess/bucketstore/internal/store"
)

// PurgeListener is told about every key removed by Purge.
// It runs synchronously on a purge task goroutine; a panic is recovered
// and logged.
type PurgeListener func(key []byte)

// candidate is a bucket whose lock the purge holds.
type candidate struct {
	row     store.Row
	release lock.Release
}

// purgeRun is the state of one Purge call.
type purgeRun struct {
	s        *BucketStore
	conn     store.Store
	now      time.Time
	listener PurgeListener
	locks    heldStripes

	purged atomic.Int64

	mu         sync.Mutex
	emptyIDs   []uint32
	emptyLocks []lock.Release
}

// Purge removes expired entries from every bucket it can lock without
// waiting. Busy buckets are skipped and left for the next run.
//
// Rows whose bucket still holds entries are rewritten in batches; rows whose
// bucket became empty are deleted together once every batch has finished.
// Each bucket lock is released exactly once: right after the bucket's last
// row mutation, or as soon as handling that bucket fails.
func (s *BucketStore) Purge(ctx context.Context, listener PurgeListener) error {
	start := time.Now()

	conn, done, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()

	run := &purgeRun{
		s:        s,
		conn:     conn,
		now:      s.now(),
		listener: listener,
		locks:    heldStripes{table: s.locks, held: make(map[int]*heldStripe)},
	}

	rows, err := conn.StreamExpired(ctx, run.now)
	if err != nil {
		return unavailable("streaming expired rows", err)
	}
	defer rows.Close()

	g := parallel.New(s.parallelism, s.logger)
	batch := make([]candidate, 0, s.purgeBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		work := batch
		batch = make([]candidate, 0, s.purgeBatchSize)
		g.Go(func() error { return run.purgeBatch(ctx, work) })
	}

	var (
		skipped   int
		streamErr error
	)
	for rows.Next() {
		if streamErr = ctx.Err(); streamErr != nil {
			break
		}
		row := rows.Row()
		release, ok := run.locks.tryLock(row.BucketID)
		if !ok {
			skipped++
			s.logger.Debug("purge skipped busy bucket", zap.Uint32("bucket", row.BucketID))
			continue
		}
		batch = append(batch, candidate{row: row, release: release})
		if len(batch) >= s.purgeBatchSize {
			flush()
		}
	}
	flush()

	taskErr := g.Wait()
	if streamErr == nil {
		if err := rows.Err(); err != nil {
			streamErr = unavailable("streaming expired rows", err)
		}
	}
	deleteErr := run.deleteEmpty(ctx)

	s.stats.IncCounter(stats.MetricPurgeRuns, 1)
	s.stats.IncCounter(stats.MetricPurgedEntries, run.purged.Load())
	s.stats.IncCounter(stats.MetricPurgeSkipped, int64(skipped))
	s.stats.ObserveHistogram(stats.MetricPurgeSeconds, time.Since(start).Seconds())

	s.logger.Info("purge finished",
		zap.Int64("purged", run.purged.Load()),
		zap.Int("skipped", skipped),
		zap.Int("deletedBuckets", len(run.emptyIDs)),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case taskErr != nil:
		return taskErr
	case streamErr != nil:
		return streamErr
	default:
		return deleteErr
	}
}

// purgeBatch cleans one batch of locked buckets.
func (r *purgeRun) purgeBatch(ctx context.Context, batch []candidate) error {
	var (
		firstErr error
		updates  []store.Row
		releases []lock.Release
	)

	for _, c := range batch {
		b, err := r.s.codec.Decode(c.row.BucketID, c.row.Payload)
		if err != nil {
			c.release()
			firstErr = firstError(firstErr, err)
			continue
		}

		removed := b.RemoveExpired(r.now)
		if len(removed) == 0 {
			c.release()
			continue
		}
		r.purged.Add(int64(len(removed)))
		for _, key := range removed {
			r.notify(key)
		}

		if b.IsEmpty() {
			r.mu.Lock()
			r.emptyIDs = append(r.emptyIDs, b.ID)
			r.emptyLocks = append(r.emptyLocks, c.release)
			r.mu.Unlock()
			continue
		}

		row, err := r.s.encodeRow(b)
		if err != nil {
			c.release()
			firstErr = firstError(firstErr, err)
			continue
		}
		updates = append(updates, row)
		releases = append(releases, c.release)
	}

	if len(updates) > 0 {
		err := r.conn.BatchUpdate(ctx, updates)
		for _, release := range releases {
			release()
		}
		if err != nil {
			firstErr = firstError(firstErr, unavailable("updating purged buckets", err))
		}
	}
	return firstErr
}

// deleteEmpty removes the rows of buckets emptied by purge and then releases
// their locks.
func (r *purgeRun) deleteEmpty(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		for _, release := range r.emptyLocks {
			release()
		}
	}()

	if len(r.emptyIDs) == 0 {
		return nil
	}
	if err := r.conn.BatchDelete(ctx, r.emptyIDs); err != nil {
		return unavailable("deleting empty buckets", err)
	}
	r.s.stats.IncCounter(stats.MetricPurgeDeletedBuckets, int64(len(r.emptyIDs)))
	return nil
}

func (r *purgeRun) notify(key []byte) {
	if r.listener == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.s.logger.Warn("purge listener panicked",
				zap.ByteString("key", key),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	r.listener(key)
}

// firstError keeps the first non-nil error.
func firstError(first, err error) error {
	if first != nil {
		return first
	}
	return err
}

// heldStripes tracks the stripe locks one purge run holds. Two buckets on
// the same stripe share the lock; it is released when the last of them is
// done.
type heldStripes struct {
	table *lock.Striped

	mu   sync.Mutex
	held map[int]*heldStripe
}

type heldStripe struct {
	release lock.Release
	refs    int
}

// tryLock takes the stripe of id without waiting, or joins it when this
// run already holds it. The returned release is idempotent.
func (h *heldStripes) tryLock(id uint32) (lock.Release, bool) {
	idx := h.table.StripeIndex(id)

	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.held[idx]
	if !ok {
		release, locked := h.table.TryLock(id)
		if !locked {
			return nil, false
		}
		st = &heldStripe{release: release}
		h.held[idx] = st
	}
	st.refs++

	return sync.OnceFunc(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		st.refs--
		if st.refs == 0 {
			delete(h.held, idx)
			st.release()
		}
	}), true
}

// RunPurger purges every interval until ctx is done or the store is closed.
// Purge failures are logged and retried on the next tick.
func (s *BucketStore) RunPurger(ctx context.Context, interval time.Duration, listener PurgeListener) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := s.logger.With(zap.Duration("interval", interval))
	logger.Info("purger started")
	defer logger.Info("purger stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.Purge(ctx, listener)
		switch {
		case err == nil:
		case errors.Is(err, ErrClosed):
			return
		case ctx.Err() != nil:
			return
		default:
			logger.Warn("purge failed", zap.Error(err))
		}
	}
}
