// Package pool provides a bounded ConnectionFactory over a concurrency-safe
// row store.
package pool

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/discochess/bucketstore/internal/store"
)

// Compile-time check that Pool implements store.ConnectionFactory.
var _ store.ConnectionFactory = (*Pool)(nil)

// Pool limits how many operations use the backend at once.
// Every connection it hands out is the shared backend itself.
type Pool struct {
	backend store.Store
	sem     *semaphore.Weighted
	size    int64
	logger  *zap.Logger

	inUse  atomic.Int64
	closed atomic.Bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New creates a pool allowing at most size concurrent connections.
func New(backend store.Store, size int, opts ...Option) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		backend: backend,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    int64(size),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire blocks until a connection is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (store.Store, error) {
	if p.closed.Load() {
		return nil, store.ErrClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	p.inUse.Add(1)
	return p.backend, nil
}

// Release returns a connection obtained from Acquire.
func (p *Pool) Release(conn store.Store) {
	if conn == nil {
		return
	}
	p.inUse.Add(-1)
	p.sem.Release(1)
}

// InUse returns the number of connections currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return int(p.size)
}

// Close closes the backend. Outstanding connections must be released first.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return store.ErrClosed
	}
	if n := p.inUse.Load(); n > 0 {
		p.logger.Warn("closing pool with connections in use", zap.Int64("inUse", n))
	}
	return p.backend.Close()
}
