package bucketstore

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discochess/bucketstore/internal/keymap/xxhashkeymap"
	"github.com/discochess/bucketstore/internal/store"
)

func TestProcess_VisitsLiveEntries(t *testing.T) {
	env := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		e := Entry{Key: key(i), Value: value(i)}
		if i >= 20 {
			e.Expiration = env.clock.Now().Add(time.Second)
		}
		mustWrite(t, env.store, e)
	}
	env.clock.Advance(time.Minute)

	var (
		mu   sync.Mutex
		seen = make(map[string][]byte)
	)
	err := env.store.Process(ctx, nil, func(e Entry, _ *TaskContext) error {
		mu.Lock()
		defer mu.Unlock()
		seen[string(e.Key)] = e.Value
		return nil
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(seen) != 20 {
		t.Fatalf("visited %d entries, want 20", len(seen))
	}
	for i := 0; i < 20; i++ {
		if !bytes.Equal(seen[string(key(i))], value(i)) {
			t.Errorf("entry %q = %q, want %q", key(i), seen[string(key(i))], value(i))
		}
	}
}

func TestProcess_FilterAndKeysOnly(t *testing.T) {
	env := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		mustWrite(t, env.store, Entry{Key: key(i), Value: value(i)})
	}

	var visited atomic.Int64
	filter := ExcludeKeys(key(0), key(1), key(2))
	err := env.store.Process(ctx, filter, func(e Entry, _ *TaskContext) error {
		visited.Add(1)
		if e.Value != nil {
			t.Errorf("entry %q carries a value", e.Key)
		}
		if bytes.Equal(e.Key, key(0)) {
			t.Errorf("excluded key %q visited", e.Key)
		}
		return nil
	}, WithFetchValue(false), WithProcessParallelism(2))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if visited.Load() != 7 {
		t.Errorf("visited %d entries, want 7", visited.Load())
	}
}

func TestProcess_Stop(t *testing.T) {
	env := newTestStore(t, WithKeyMapper(xxhashkeymap.NewWithMask(0)))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		mustWrite(t, env.store, Entry{Key: key(i), Value: value(i)})
	}

	var visited atomic.Int64
	err := env.store.Process(ctx, nil, func(_ Entry, tc *TaskContext) error {
		visited.Add(1)
		tc.Stop()
		return nil
	}, WithProcessParallelism(1))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if visited.Load() != 1 {
		t.Errorf("visited %d entries after Stop, want 1", visited.Load())
	}
}

func TestProcess_ErrorPropagates(t *testing.T) {
	env := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		mustWrite(t, env.store, Entry{Key: key(i), Value: value(i)})
	}

	err := env.store.Process(ctx, nil, func(Entry, *TaskContext) error {
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("Process() error = %v, want errBoom", err)
	}
}

func TestProcess_CorruptRow(t *testing.T) {
	env := newTestStore(t)
	ctx := context.Background()

	if err := env.mem.Upsert(ctx, store.Row{BucketID: 0x400, Payload: []byte("garbage"), EarliestExpiration: store.NoExpiration}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	err := env.store.Process(ctx, nil, func(Entry, *TaskContext) error { return nil })
	if !errors.Is(err, ErrCorruptData) {
		t.Errorf("Process() error = %v, want ErrCorruptData", err)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	env := newTestStore(t)
	for i := 0; i < 5; i++ {
		mustWrite(t, env.store, Entry{Key: key(i), Value: value(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.store.Process(ctx, nil, func(Entry, *TaskContext) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

func TestSizeAndKeys(t *testing.T) {
	env := newTestStore(t)
	ctx := context.Background()

	for i := 4; i >= 0; i-- {
		mustWrite(t, env.store, Entry{Key: key(i), Value: value(i)})
	}

	n, err := env.store.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if n != 5 {
		t.Errorf("Size() = %d, want 5", n)
	}

	keys, err := env.store.Keys(ctx, ExcludeKeys(key(2)))
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	want := [][]byte{key(0), key(1), key(3), key(4)}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %q, want %q", keys, want)
	}
	for i := range want {
		if !bytes.Equal(keys[i], want[i]) {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}
