package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rcrowley/go-metrics"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/discochess/bucketstore"
	"github.com/discochess/bucketstore/internal/codec"
	"github.com/discochess/bucketstore/internal/codec/gzipcodec"
	"github.com/discochess/bucketstore/internal/codec/noopcodec"
	"github.com/discochess/bucketstore/internal/codec/zstdcodec"
	"github.com/discochess/bucketstore/internal/keymap"
	"github.com/discochess/bucketstore/internal/keymap/fnvkeymap"
	"github.com/discochess/bucketstore/internal/keymap/xxhashkeymap"
	"github.com/discochess/bucketstore/internal/marshal"
	"github.com/discochess/bucketstore/internal/marshal/gobmarshal"
	"github.com/discochess/bucketstore/internal/marshal/msgpackmarshal"
	"github.com/discochess/bucketstore/internal/stats"
	"github.com/discochess/bucketstore/internal/stats/gometrics"
	statslogger "github.com/discochess/bucketstore/internal/stats/logger"
	"github.com/discochess/bucketstore/internal/store"
	"github.com/discochess/bucketstore/internal/store/boltstore"
	"github.com/discochess/bucketstore/internal/store/cachedstore"
	"github.com/discochess/bucketstore/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/bucketstore/internal/store/cachedstore/memory"
	"github.com/discochess/bucketstore/internal/store/diskstore"
	"github.com/discochess/bucketstore/internal/store/gcsstore"
	"github.com/discochess/bucketstore/internal/store/pool"
	"github.com/discochess/bucketstore/internal/store/s3store"
)

// metricsRegistry receives store metrics when --metrics=gometrics.
// It is printed after the command finishes.
var metricsRegistry = metrics.NewRegistry()

// newLogger returns a development logger when verbose is set and a
// no-op logger otherwise.
func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewNop(), nil
}

// openStore opens the configured database. The caller must Close the store.
func openStore(ctx context.Context) (*bucketstore.BucketStore, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	mapper, err := keyMapper(viper.GetString("key-mapper"), viper.GetUint32("mask"))
	if err != nil {
		return nil, err
	}
	m, err := marshaller(viper.GetString("marshaller"))
	if err != nil {
		return nil, err
	}
	c, err := compression(viper.GetString("compression"))
	if err != nil {
		return nil, err
	}

	collector, err := statsCollector(viper.GetString("metrics"), logger)
	if err != nil {
		return nil, err
	}

	db, err := openBackend(ctx, viper.GetString("backend"))
	if err != nil {
		return nil, err
	}

	var backend store.Store = db
	if size := viper.GetInt("cache-size"); size > 0 {
		lruStrategy, err := lru.New(size)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating LRU strategy: %w", err)
		}
		backend = cachedstore.New(db, memory.New(lruStrategy, collector))
	}

	s, err := bucketstore.New(
		bucketstore.WithConnectionFactory(pool.New(backend, viper.GetInt("pool-size"), pool.WithLogger(logger))),
		bucketstore.WithKeyMapper(mapper),
		bucketstore.WithMarshaller(m),
		bucketstore.WithCodec(c),
		bucketstore.WithStats(collector),
		bucketstore.WithLogger(logger),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// openBackend opens the row store named by the backend flag.
func openBackend(ctx context.Context, name string) (store.Store, error) {
	switch name {
	case "bolt":
		db, err := boltstore.Open(viper.GetString("db"))
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	case "disk":
		dir := viper.GetString("db")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return diskstore.New(dir)
	case "s3":
		bucketName, err := objectBucket()
		if err != nil {
			return nil, err
		}
		opts := []s3store.Option{s3store.WithPrefix(viper.GetString("prefix"))}
		if region := viper.GetString("region"); region != "" {
			opts = append(opts, s3store.WithRegion(region))
		}
		if endpoint := viper.GetString("endpoint"); endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(endpoint))
		}
		return s3store.New(ctx, bucketName, opts...)
	case "gcs":
		bucketName, err := objectBucket()
		if err != nil {
			return nil, err
		}
		return gcsstore.New(ctx, bucketName, gcsstore.WithPrefix(viper.GetString("prefix")))
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func objectBucket() (string, error) {
	name := viper.GetString("bucket")
	if name == "" {
		return "", fmt.Errorf("--bucket is required for the %s backend", viper.GetString("backend"))
	}
	return name, nil
}

func statsCollector(name string, logger *zap.Logger) (stats.Collector, error) {
	switch name {
	case "none":
		return stats.NewNoop(), nil
	case "log":
		return statslogger.New(logger), nil
	case "gometrics":
		return gometrics.New(metricsRegistry), nil
	default:
		return nil, fmt.Errorf("unknown metrics sink %q", name)
	}
}

func keyMapper(name string, mask uint32) (keymap.Mapper, error) {
	switch name {
	case "xxhash":
		return xxhashkeymap.NewWithMask(mask), nil
	case "fnv":
		return fnvkeymap.NewWithMask(mask), nil
	default:
		return nil, fmt.Errorf("unknown key mapper %q", name)
	}
}

func marshaller(name string) (marshal.Marshaller, error) {
	switch name {
	case "msgpack":
		return msgpackmarshal.New(), nil
	case "gob":
		return gobmarshal.New(), nil
	default:
		return nil, fmt.Errorf("unknown marshaller %q", name)
	}
}

func compression(name string) (codec.Codec, error) {
	switch name {
	case "zstd":
		return zstdcodec.New(), nil
	case "gzip":
		return gzipcodec.New(), nil
	case "none":
		return noopcodec.New(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}
