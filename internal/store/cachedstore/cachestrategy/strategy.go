// Package cachestrategy defines cache eviction strategy interfaces.
package cachestrategy

// Strategy defines the interface for cache eviction strategies.
// Keys are bucket ids, values are row payloads.
type Strategy interface {
	Get(key uint32) ([]byte, bool)
	Add(key uint32, value []byte) bool
	Remove(key uint32) bool
	Purge()
	Len() int
}
