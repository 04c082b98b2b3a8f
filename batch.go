package bucketstore

import (
	"context"
	"slices"
	"time"

	"github.com/discochess/bucketstore/internal/bucket"
	"github.com/discochess/bucketstore/internal/stats"
)

// Batch collects writes and deletes to apply with WriteBatch.
// Operations on the same key apply in the order they were added.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	entry  Entry
	delete bool
}

// Put adds a write of e.
func (b *Batch) Put(e Entry) {
	b.ops = append(b.ops, batchOp{entry: e})
}

// Delete adds a delete of key.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{entry: Entry{Key: key}, delete: true})
}

// Len returns the number of operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Reset empties the batch for reuse.
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
}

// WriteBatch applies every operation in batch, rewriting each affected
// bucket once. Buckets are handled in ascending id order with one lock held
// at a time. The batch is not atomic: on error, buckets handled before the
// failing one keep their changes.
func (s *BucketStore) WriteBatch(ctx context.Context, batch *Batch) error {
	groups := make(map[uint32][]batchOp)
	for _, op := range batch.ops {
		id := s.mapper.BucketID(op.entry.Key)
		groups[id] = append(groups[id], op)
	}

	ids := make([]uint32, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	now := s.now()
	for _, id := range ids {
		if err := s.applyBucket(ctx, id, groups[id], now); err != nil {
			return err
		}
	}
	return nil
}

func (s *BucketStore) applyBucket(ctx context.Context, id uint32, ops []batchOp, now time.Time) error {
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

	var writes, deletes int64
	for _, op := range ops {
		if op.delete || op.entry.IsExpired(now) {
			if b.Remove(op.entry.Key) {
				deletes++
			}
			continue
		}
		b.Put(op.entry)
		writes++
	}

	if err := s.persist(ctx, conn, b, existed); err != nil {
		return err
	}
	s.stats.IncCounter(stats.MetricWrites, writes)
	s.stats.IncCounter(stats.MetricDeletes, deletes)
	return nil
}
