// Package boltbucketstorefx provides an fx module for a bbolt-backed bucket store.
package boltbucketstorefx

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/bucketstore"
	"github.com/discochess/bucketstore/internal/stats"
	"github.com/discochess/bucketstore/internal/stats/logger"
	statsprom "github.com/discochess/bucketstore/internal/stats/prometheus"
	"github.com/discochess/bucketstore/internal/store"
	"github.com/discochess/bucketstore/internal/store/boltstore"
	"github.com/discochess/bucketstore/internal/store/cachedstore"
	"github.com/discochess/bucketstore/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/bucketstore/internal/store/cachedstore/memory"
	"github.com/discochess/bucketstore/internal/store/pool"
)

// Config holds configuration for the bolt-backed store.
type Config struct {
	// Path is the bbolt database file.
	Path string

	// PoolSize bounds concurrent connections. Default is 16.
	PoolSize int

	// CacheSize is the number of rows cached in memory.
	// Zero disables the row cache.
	CacheSize int

	// PurgeInterval is the period of the background purger.
	// Zero disables it.
	PurgeInterval time.Duration
}

// Module provides a bolt-backed *bucketstore.BucketStore.
// Requires a Config and a *zap.Logger to be provided. An optional
// bucketstore.PurgeListener is called for every purged key. When a
// prometheus.Registerer is provided, metrics are registered there instead
// of being logged.
var Module = fx.Module("boltbucketstore",
	fx.Provide(
		newStatsCollector,
		newStore,
	),
)

type collectorParams struct {
	fx.In

	Logger     *zap.Logger
	Registerer prometheus.Registerer `optional:"true"`
}

func newStatsCollector(p collectorParams) stats.Collector {
	if p.Registerer != nil {
		return statsprom.New(p.Registerer)
	}
	return logger.New(p.Logger.Named("bucketstore.stats"))
}

// Params holds dependencies for creating the store.
type Params struct {
	fx.In

	Config    Config
	Logger    *zap.Logger
	Collector stats.Collector
	Listener  bucketstore.PurgeListener `optional:"true"`
	Lifecycle fx.Lifecycle
}

// Result holds the provided store.
type Result struct {
	fx.Out

	Store *bucketstore.BucketStore
}

func newStore(p Params) (Result, error) {
	poolSize := p.Config.PoolSize
	if poolSize <= 0 {
		poolSize = 16
	}

	db, err := boltstore.Open(p.Config.Path)
	if err != nil {
		return Result{}, err
	}

	var backend store.Store = db
	if p.Config.CacheSize > 0 {
		lruStrategy, err := lru.New(p.Config.CacheSize)
		if err != nil {
			db.Close()
			return Result{}, err
		}
		backend = cachedstore.New(db, memory.New(lruStrategy, p.Collector))
	}

	s, err := bucketstore.New(
		bucketstore.WithConnectionFactory(pool.New(backend, poolSize, pool.WithLogger(p.Logger.Named("pool")))),
		bucketstore.WithStats(p.Collector),
		bucketstore.WithLogger(p.Logger),
	)
	if err != nil {
		db.Close()
		return Result{}, err
	}

	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p.Config.PurgeInterval <= 0 {
				return nil
			}
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.RunPurger(ctx, p.Config.PurgeInterval, p.Listener)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
				wg.Wait()
			}
			return s.Close()
		},
	})

	return Result{Store: s}, nil
}
