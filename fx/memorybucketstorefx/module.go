// Package memorybucketstorefx provides an fx module for an in-memory bucket store.
// Useful for testing.
package memorybucketstorefx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/bucketstore"
	"github.com/discochess/bucketstore/internal/stats"
	"github.com/discochess/bucketstore/internal/stats/logger"
	"github.com/discochess/bucketstore/internal/store/memstore"
	"github.com/discochess/bucketstore/internal/store/pool"
)

// poolSize bounds concurrent connections to the memory store.
const poolSize = 8

// Module provides an in-memory bucket store for testing.
// Requires a *zap.Logger to be provided.
var Module = fx.Module("memorybucketstore",
	fx.Provide(
		newStatsCollector,
		newMemStore,
		newStore,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("bucketstore.stats"))
}

func newMemStore() *memstore.Store {
	return memstore.New()
}

// Params holds dependencies for creating the store.
type Params struct {
	fx.In

	Logger    *zap.Logger
	Collector stats.Collector
	Rows      *memstore.Store
	Lifecycle fx.Lifecycle
}

// Result holds the provided store and its backend.
type Result struct {
	fx.Out

	Store *bucketstore.BucketStore
	Rows  *memstore.Store // Exposed for test setup
}

func newStore(p Params) (Result, error) {
	s, err := bucketstore.New(
		bucketstore.WithConnectionFactory(pool.New(p.Rows, poolSize)),
		bucketstore.WithStats(p.Collector),
		bucketstore.WithLogger(p.Logger),
	)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})

	return Result{
		Store: s,
		Rows:  p.Rows,
	}, nil
}
