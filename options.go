package bucketstore

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/bucketstore/internal/codec"
	"github.com/discochess/bucketstore/internal/codec/zstdcodec"
	"github.com/discochess/bucketstore/internal/keymap"
	"github.com/discochess/bucketstore/internal/keymap/xxhashkeymap"
	"github.com/discochess/bucketstore/internal/lock"
	"github.com/discochess/bucketstore/internal/marshal"
	"github.com/discochess/bucketstore/internal/marshal/msgpackmarshal"
	"github.com/discochess/bucketstore/internal/stats"
	"github.com/discochess/bucketstore/internal/store"
)

// DefaultPurgeBatchSize is the number of buckets handed to one purge task.
const DefaultPurgeBatchSize = 100

// Option configures a BucketStore.
type Option interface {
	apply(*options)
}

// options holds the store configuration.
type options struct {
	conns            store.ConnectionFactory
	keyMapper        keymap.Mapper
	concurrencyLevel int
	purgeBatchSize   int
	parallelism      int
	marshaller       marshal.Marshaller
	compression      codec.Codec
	stats            stats.Collector
	logger           *zap.Logger
	now              func() time.Time
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		keyMapper:        xxhashkeymap.New(),
		concurrencyLevel: lock.DefaultStripes,
		purgeBatchSize:   DefaultPurgeBatchSize,
		parallelism:      runtime.GOMAXPROCS(0),
		marshaller:       msgpackmarshal.New(),
		compression:      zstdcodec.New(),
		stats:            stats.NewNoop(),
		logger:           zap.NewNop(),
		now:              time.Now,
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithConnectionFactory sets the source of row store connections.
// It is required.
func WithConnectionFactory(f store.ConnectionFactory) Option {
	return optionFunc(func(o *options) {
		o.conns = f
	})
}

// WithKeyMapper sets the key to bucket id mapping.
// If not set, xxhash with the default mask is used.
// The mapping must not change for the lifetime of the persisted data.
func WithKeyMapper(m keymap.Mapper) Option {
	return optionFunc(func(o *options) {
		o.keyMapper = m
	})
}

// WithConcurrencyLevel sets the number of lock stripes.
// It is rounded up to a power of two. Default is 2048.
func WithConcurrencyLevel(n int) Option {
	return optionFunc(func(o *options) {
		o.concurrencyLevel = n
	})
}

// WithPurgeBatchSize sets how many buckets one purge task handles.
// Default is 100.
func WithPurgeBatchSize(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.purgeBatchSize = n
		}
	})
}

// WithParallelism bounds the number of concurrent purge and process tasks.
// Default is runtime.GOMAXPROCS(0).
func WithParallelism(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	})
}

// WithMarshaller sets the marshaller for bucket entries.
// If not set, msgpack is used.
func WithMarshaller(m marshal.Marshaller) Option {
	return optionFunc(func(o *options) {
		o.marshaller = m
	})
}

// WithCodec sets the compression codec for row payloads and exports.
// If not set, zstd is used.
func WithCodec(c codec.Codec) Option {
	return optionFunc(func(o *options) {
		o.compression = c
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithClock sets the time source used for expiration checks.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}
