// Package xxhashkeymap implements xxHash-based bucket mapping.
//
// This is the default strategy: xxHash is fast and well distributed for the
// short binary keys a cache typically persists.
package xxhashkeymap

import (
	"github.com/cespare/xxhash/v2"

	"github.com/discochess/bucketstore/internal/keymap"
)

// Mapper implements xxHash-based bucket mapping.
type Mapper struct {
	mask uint32
}

// Ensure Mapper implements keymap.Mapper.
var _ keymap.Mapper = (*Mapper)(nil)

// New creates a mapper using keymap.DefaultMask.
func New() *Mapper {
	return NewWithMask(keymap.DefaultMask)
}

// NewWithMask creates a mapper with a custom mask.
// Fewer set bits means fewer, denser buckets.
func NewWithMask(mask uint32) *Mapper {
	return &Mapper{mask: mask}
}

// Name returns the strategy name.
func (m *Mapper) Name() string {
	return "xxhash"
}

// BucketID returns the masked low 32 bits of the key's xxHash.
func (m *Mapper) BucketID(key []byte) uint32 {
	return uint32(xxhash.Sum64(key)) & m.mask
}
