package bucketstore

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/discochess/bucketstore/internal/parallel"
)

// KeyFilter selects keys. A nil KeyFilter accepts every key.
type KeyFilter func(key []byte) bool

// ProcessFunc visits one live entry. It is called concurrently from several
// goroutines and must be safe for that.
type ProcessFunc func(e Entry, tc *TaskContext) error

// TaskContext lets a ProcessFunc end the iteration early.
type TaskContext struct {
	stopped atomic.Bool
}

// Stop ends the iteration. Rows already being visited finish their current
// entry; no further entries are visited.
func (tc *TaskContext) Stop() {
	tc.stopped.Store(true)
}

// IsStopped reports whether Stop has been called.
func (tc *TaskContext) IsStopped() bool {
	return tc.stopped.Load()
}

// ProcessOption configures a single Process call.
type ProcessOption func(*processOptions)

type processOptions struct {
	parallelism int
	fetchValue  bool
}

// WithProcessParallelism bounds the number of rows visited at once.
func WithProcessParallelism(n int) ProcessOption {
	return func(o *processOptions) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithFetchValue controls whether entries carry their value.
// Default is true; key-only visits skip copying values.
func WithFetchValue(fetch bool) ProcessOption {
	return func(o *processOptions) {
		o.fetchValue = fetch
	}
}

// Process visits every live entry whose key passes filter.
//
// Rows are streamed on the calling goroutine and each decoded row is visited
// by a separate task. Entries are read without bucket locks, so writes that
// happen during the iteration may or may not be observed. The first error
// returned by fn, or raised decoding a row, is returned once every running
// task has finished.
func (s *BucketStore) Process(ctx context.Context, filter KeyFilter, fn ProcessFunc, opts ...ProcessOption) error {
	cfg := processOptions{parallelism: s.parallelism, fetchValue: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, done, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()

	rows, err := conn.StreamAll(ctx)
	if err != nil {
		return unavailable("streaming rows", err)
	}
	defer rows.Close()

	var (
		tc  TaskContext
		now = s.now()
		g   = parallel.New(cfg.parallelism, s.logger)
	)

	var ctxErr error
	for !tc.IsStopped() && rows.Next() {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		row := rows.Row()
		g.Go(func() error {
			if tc.IsStopped() {
				return nil
			}
			b, err := s.codec.Decode(row.BucketID, row.Payload)
			if err != nil {
				tc.Stop()
				return err
			}
			for _, e := range b.Entries() {
				if tc.IsStopped() {
					return nil
				}
				if e.IsExpired(now) || (filter != nil && !filter(e.Key)) {
					continue
				}
				if !cfg.fetchValue {
					e.Value = nil
				}
				if err := fn(e, &tc); err != nil {
					tc.Stop()
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return unavailable("streaming rows", err)
	}
	if ctxErr != nil {
		s.logger.Debug("process cancelled", zap.Error(ctxErr))
	}
	return ctxErr
}

// Size returns the number of live entries.
func (s *BucketStore) Size(ctx context.Context) (int, error) {
	var n atomic.Int64
	err := s.Process(ctx, nil, func(Entry, *TaskContext) error {
		n.Add(1)
		return nil
	}, WithFetchValue(false))
	if err != nil {
		return 0, err
	}
	return int(n.Load()), nil
}

// Keys returns the live keys passing filter, sorted bytewise.
func (s *BucketStore) Keys(ctx context.Context, filter KeyFilter) ([][]byte, error) {
	var (
		mu   sync.Mutex
		keys [][]byte
	)
	err := s.Process(ctx, filter, func(e Entry, _ *TaskContext) error {
		mu.Lock()
		keys = append(keys, e.Key)
		mu.Unlock()
		return nil
	}, WithFetchValue(false))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(keys, bytes.Compare)
	return keys, nil
}

// ExcludeKeys returns a filter rejecting every key in keys.
func ExcludeKeys(keys ...[]byte) KeyFilter {
	excluded := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		excluded[string(k)] = struct{}{}
	}
	return func(key []byte) bool {
		_, ok := excluded[string(key)]
		return !ok
	}
}
