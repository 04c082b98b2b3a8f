// Package keymap defines the strategy interface for mapping cache keys onto
// bucket identifiers.
package keymap

// DefaultMask clears the low 10 bits of a key hash, bounding the number of
// distinct buckets (and therefore rows) a store can create.
const DefaultMask uint32 = 0xfffffc00

// Mapper derives a bucket id from a marshalled key.
type Mapper interface {
	// Name returns a human-readable name for this strategy.
	Name() string

	// BucketID computes the bucket id for a key.
	//
	// Implementations must be pure: the same key always maps to the same id
	// for the lifetime of a store. Changing the mapping after data has been
	// written strands existing rows.
	BucketID(key []byte) uint32
}
