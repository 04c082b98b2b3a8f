// Package lru implements an LRU cache eviction strategy.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/discochess/bucketstore/internal/store/cachedstore/cachestrategy"
)

// Compile-time check that Strategy implements cachestrategy.Strategy.
var _ cachestrategy.Strategy = (*Strategy)(nil)

// Strategy implements LRU eviction.
type Strategy struct {
	cache *lru.Cache[uint32, []byte]
}

// New creates a new LRU strategy with the given capacity.
func New(capacity int) (*Strategy, error) {
	c, err := lru.New[uint32, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &Strategy{cache: c}, nil
}

// Get retrieves a value by key.
func (s *Strategy) Get(key uint32) ([]byte, bool) {
	return s.cache.Get(key)
}

// Add adds a value to the cache and reports whether an eviction occurred.
func (s *Strategy) Add(key uint32, value []byte) bool {
	return s.cache.Add(key, value)
}

// Remove drops a key and reports whether it was present.
func (s *Strategy) Remove(key uint32) bool {
	return s.cache.Remove(key)
}

// Purge drops every key.
func (s *Strategy) Purge() {
	s.cache.Purge()
}

// Len returns the number of items in the cache.
func (s *Strategy) Len() int {
	return s.cache.Len()
}
