// Package lock provides a fixed-size table of reader/writer locks shared by
// an unbounded set of bucket ids.
//
// Many bucket ids map onto one stripe, so unrelated buckets sharing a stripe
// contend with each other. In exchange the table uses constant memory no
// matter how many buckets exist. Callers never see the underlying mutexes:
// every acquisition returns a release func, which is meant to be deferred.
//
//	release := locks.Lock(id)
//	defer release()
package lock

import (
	"sync"
)

// DefaultStripes is the default concurrency level.
const DefaultStripes = 2048

// Release releases a previously acquired stripe lock.
// Calling it more than once has no further effect.
type Release func()

// stripe pads each mutex to its own cache line.
type stripe struct {
	mu sync.RWMutex
	_  [40]byte
}

// Striped maps bucket ids onto a power-of-two number of stripes.
type Striped struct {
	stripes []stripe
	mask    uint32
}

// NewStriped creates a lock table with at least n stripes.
// n is rounded up to the next power of two; n <= 0 uses DefaultStripes.
func NewStriped(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Striped{
		stripes: make([]stripe, size),
		mask:    uint32(size - 1),
	}
}

// Stripes returns the number of stripes.
func (s *Striped) Stripes() int {
	return len(s.stripes)
}

// StripeIndex returns the stripe guarding id.
func (s *Striped) StripeIndex(id uint32) int {
	return int(mix(id) & s.mask)
}

// RLock blocks until the stripe for id is held in shared mode.
func (s *Striped) RLock(id uint32) Release {
	mu := &s.stripes[s.StripeIndex(id)].mu
	mu.RLock()
	return Release(sync.OnceFunc(mu.RUnlock))
}

// Lock blocks until the stripe for id is held exclusively.
func (s *Striped) Lock(id uint32) Release {
	mu := &s.stripes[s.StripeIndex(id)].mu
	mu.Lock()
	return Release(sync.OnceFunc(mu.Unlock))
}

// TryLock acquires the stripe for id exclusively without waiting.
// It returns false if the stripe is held in any mode.
func (s *Striped) TryLock(id uint32) (Release, bool) {
	mu := &s.stripes[s.StripeIndex(id)].mu
	if !mu.TryLock() {
		return nil, false
	}
	return Release(sync.OnceFunc(mu.Unlock)), true
}

// mix is the murmur3 32-bit finalizer. Bucket ids usually have their low
// bits cleared, so they must be scrambled before masking.
func mix(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
