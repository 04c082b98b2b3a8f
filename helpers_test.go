package bucketstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discochess/bucketstore/internal/store"
	"github.com/discochess/bucketstore/internal/store/memstore"
	"github.com/discochess/bucketstore/internal/store/pool"
)

var errBoom = errors.New("boom")

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultyStore wraps a store and fails selected operations on demand.
type faultyStore struct {
	store.Store

	failSelect      atomic.Bool
	failWrite       atomic.Bool
	failBatchUpdate atomic.Bool
	failBatchDelete atomic.Bool
}

func (f *faultyStore) Select(ctx context.Context, id uint32) ([]byte, error) {
	if f.failSelect.Load() {
		return nil, errBoom
	}
	return f.Store.Select(ctx, id)
}

func (f *faultyStore) Upsert(ctx context.Context, row store.Row) error {
	if f.failWrite.Load() {
		return errBoom
	}
	return f.Store.Upsert(ctx, row)
}

func (f *faultyStore) Update(ctx context.Context, row store.Row) error {
	if f.failWrite.Load() {
		return errBoom
	}
	return f.Store.Update(ctx, row)
}

func (f *faultyStore) BatchUpdate(ctx context.Context, rows []store.Row) error {
	if f.failBatchUpdate.Load() {
		return errBoom
	}
	return f.Store.BatchUpdate(ctx, rows)
}

func (f *faultyStore) BatchDelete(ctx context.Context, ids []uint32) error {
	if f.failBatchDelete.Load() {
		return errBoom
	}
	return f.Store.BatchDelete(ctx, ids)
}

type testEnv struct {
	store *BucketStore
	mem   *memstore.Store
	fault *faultyStore
	clock *fakeClock
}

// newTestStore builds a store over an in-memory backend wrapped in a
// faultyStore, with a fake clock.
func newTestStore(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	mem := memstore.New()
	fault := &faultyStore{Store: mem}
	clock := newFakeClock()

	opts = append([]Option{
		WithConnectionFactory(pool.New(fault, 4)),
		WithClock(clock.Now),
	}, opts...)
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &testEnv{store: s, mem: mem, fault: fault, clock: clock}
}

func key(i int) []byte {
	return []byte(fmt.Sprintf("key-%04d", i))
}

func value(i int) []byte {
	return []byte(fmt.Sprintf("value-%04d", i))
}

// mustWrite writes an entry or fails the test.
func mustWrite(t *testing.T, s *BucketStore, e Entry) {
	t.Helper()
	if err := s.Write(context.Background(), e); err != nil {
		t.Fatalf("Write(%q) error = %v", e.Key, err)
	}
}

// within fails the test if fn does not return before d.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not finish within %v", what, d)
	}
}
