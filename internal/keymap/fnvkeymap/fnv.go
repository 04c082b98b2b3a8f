// Package fnvkeymap implements FNV-1a hash-based bucket mapping.
//
// Kept as a dependency-free baseline for comparing bucket distribution.
package fnvkeymap

import (
	"github.com/discochess/bucketstore/internal/keymap"
)

// Mapper implements FNV-1a hash-based bucket mapping.
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
func NewWithMask(mask uint32) *Mapper {
	return &Mapper{mask: mask}
}

// Name returns the strategy name.
func (m *Mapper) Name() string {
	return "fnv32"
}

// BucketID computes a bucket id from the FNV-1a hash of the key.
func (m *Mapper) BucketID(key []byte) uint32 {
	return fnv1a32(key) & m.mask
}

// fnv1a32 computes the FNV-1a 32-bit hash of b.
func fnv1a32(b []byte) uint32 {
	var h uint32 = 2166136261 // FNV offset basis
	for i := 0; i < len(b); i++ {
		h ^= uint32(b[i])
		h *= 16777619 // FNV prime
	}
	return h
}
