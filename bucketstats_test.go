package bucketstore

import (
	"context"
	"testing"
	"time"

	"github.com/discochess/bucketstore/internal/keymap/xxhashkeymap"
	"github.com/discochess/bucketstore/internal/store"
)

func TestBucketStats(t *testing.T) {
	env := newTestStore(t, WithKeyMapper(xxhashkeymap.NewWithMask(0)))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		e := Entry{Key: key(i), Value: value(i)}
		if i < 2 {
			e.Expiration = env.clock.Now().Add(time.Second)
		}
		mustWrite(t, env.store, e)
	}
	env.clock.Advance(time.Minute)

	got, err := env.store.BucketStats(ctx)
	if err != nil {
		t.Fatalf("BucketStats() error = %v", err)
	}
	want := BucketStats{Rows: 1, Entries: 6, Expired: 2, Mean: 6, StdDev: 0, P95: 6, Max: 6}
	if got != want {
		t.Errorf("BucketStats() = %+v, want %+v", got, want)
	}
}

func TestBucketStats_Spread(t *testing.T) {
	env := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		mustWrite(t, env.store, Entry{Key: key(i), Value: value(i)})
	}
	if err := env.mem.Upsert(ctx, store.Row{BucketID: 0x400, Payload: []byte("garbage"), EarliestExpiration: store.NoExpiration}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := env.store.BucketStats(ctx)
	if err != nil {
		t.Fatalf("BucketStats() error = %v", err)
	}
	if got.Entries != 100 {
		t.Errorf("Entries = %d, want 100", got.Entries)
	}
	if got.CorruptRows != 1 {
		t.Errorf("CorruptRows = %d, want 1", got.CorruptRows)
	}
	if got.Rows != env.mem.Len() {
		t.Errorf("Rows = %d, want %d", got.Rows, env.mem.Len())
	}
	if got.Mean < 1 || got.Max < 1 || float64(got.Max) < got.Mean {
		t.Errorf("implausible distribution %+v", got)
	}
}
