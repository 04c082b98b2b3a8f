// Package noopcodec provides a pass-through codec for uncompressed payloads.
package noopcodec

import (
	"io"

	"github.com/discochess/bucketstore/internal/codec"
)

// Compile-time checks.
var (
	_ codec.Codec      = (*Codec)(nil)
	_ codec.BlockCodec = (*Codec)(nil)
)

// Codec stores data as-is.
type Codec struct{}

// New returns a new no-op codec.
func New() *Codec {
	return &Codec{}
}

// Reader returns r as a ReadCloser.
func (c *Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r), nil
}

// Writer returns w as a WriteCloser whose Close does not close w.
func (c *Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

// EncodeAll returns a copy of src.
func (c *Codec) EncodeAll(src []byte) []byte {
	return append([]byte(nil), src...)
}

// DecodeAll returns a copy of src.
func (c *Codec) DecodeAll(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

// Name returns "none".
func (c *Codec) Name() string {
	return "none"
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
