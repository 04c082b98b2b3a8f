// Package marshal defines the object-to-bytes marshaller used to serialize
// bucket contents.
package marshal

// Marshaller converts values to and from bytes.
// Implementations must be safe for concurrent use.
type Marshaller interface {
	// Name identifies the wire format (e.g., "msgpack", "gob").
	Name() string
	// Marshal encodes v.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into the value pointed to by v.
	Unmarshal(data []byte, v any) error
}
