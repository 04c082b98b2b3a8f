package lock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewStriped_RoundsUp(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, DefaultStripes},
		{-3, DefaultStripes},
		{1, 1},
		{3, 4},
		{16, 16},
		{1000, 1024},
	}

	for _, tt := range tests {
		if got := NewStriped(tt.n).Stripes(); got != tt.want {
			t.Errorf("NewStriped(%d).Stripes() = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestStriped_MaskedIDsSpread(t *testing.T) {
	s := NewStriped(64)
	used := make(map[int]bool)
	for i := uint32(0); i < 256; i++ {
		used[s.StripeIndex(i<<10)] = true
	}
	if len(used) < 48 {
		t.Errorf("ids with cleared low bits hit only %d of 64 stripes", len(used))
	}
}

func TestStriped_TryLock_Busy(t *testing.T) {
	s := NewStriped(8)

	release := s.Lock(42)
	if _, ok := s.TryLock(42); ok {
		t.Fatal("TryLock() succeeded while stripe held for writing")
	}
	release()

	rrelease := s.RLock(42)
	if _, ok := s.TryLock(42); ok {
		t.Fatal("TryLock() succeeded while stripe held for reading")
	}
	rrelease()

	trelease, ok := s.TryLock(42)
	if !ok {
		t.Fatal("TryLock() failed on free stripe")
	}
	trelease()
}

func TestStriped_ReleaseIsIdempotent(t *testing.T) {
	s := NewStriped(1)

	release := s.Lock(1)
	release()
	release() // must not unlock an unlocked mutex

	other := s.Lock(1)
	release() // stale release must not free someone else's hold
	if _, ok := s.TryLock(1); ok {
		t.Fatal("stale release freed a lock held by another acquisition")
	}
	other()
}

func TestStriped_ReadersShare(t *testing.T) {
	s := NewStriped(1)

	r1 := s.RLock(7)
	done := make(chan struct{})
	go func() {
		r2 := s.RLock(7)
		r2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked behind first reader")
	}
	r1()
}

func TestStriped_WriterExcludes(t *testing.T) {
	s := NewStriped(4)

	var inside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				release := s.Lock(99)
				if n := inside.Add(1); n != 1 {
					t.Errorf("%d writers inside the same stripe", n)
				}
				inside.Add(-1)
				release()
			}
		}()
	}
	wg.Wait()
}

func TestStriped_DifferentStripesIndependent(t *testing.T) {
	s := NewStriped(16)

	a := uint32(0)
	b := uint32(1 << 10)
	for s.StripeIndex(a) == s.StripeIndex(b) {
		b += 1 << 10
	}

	release := s.Lock(a)
	defer release()

	done := make(chan struct{})
	go func() {
		r := s.Lock(b)
		r()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different stripe waited for an unrelated holder")
	}
}
