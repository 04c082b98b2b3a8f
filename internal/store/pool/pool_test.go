package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/discochess/bucketstore/internal/store"
	"github.com/discochess/bucketstore/internal/store/memstore"
)

func TestPool_AcquireRelease(t *testing.T) {
	p := New(memstore.New(), 2)
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if p.InUse() != 2 {
		t.Errorf("InUse() = %d, want 2", p.InUse())
	}

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(timeout); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() on exhausted pool error = %v, want DeadlineExceeded", err)
	}

	p.Release(c1)
	p.Release(c2)
	if p.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", p.InUse())
	}
}

func TestPool_Close(t *testing.T) {
	p := New(memstore.New(), 1)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); !errors.Is(err, store.ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if _, err := p.Acquire(context.Background()); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrClosed", err)
	}
}

func TestPool_ReleaseNil(t *testing.T) {
	p := New(memstore.New(), 1)
	p.Release(nil)
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
}
