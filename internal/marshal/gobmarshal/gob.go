// Package gobmarshal provides a marshaller based on Go's gob format.
package gobmarshal

import (
	"bytes"
	"encoding/gob"

	"github.com/discochess/bucketstore/internal/marshal"
)

// Compile-time check that Marshaller implements marshal.Marshaller.
var _ marshal.Marshaller = (*Marshaller)(nil)

// Marshaller implements gob encoding.
type Marshaller struct{}

// New returns a new gob marshaller.
func New() *Marshaller {
	return &Marshaller{}
}

// Name returns "gob".
func (m *Marshaller) Name() string {
	return "gob"
}

// Marshal encodes v with gob.
func (m *Marshaller) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes gob data into v.
func (m *Marshaller) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
