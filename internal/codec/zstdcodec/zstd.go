// Package zstdcodec provides a zstd compression codec.
//
// Bucket payloads are small and compressed on every write, so the codec keeps
// one shared encoder and decoder for block operations instead of allocating a
// new one per call. Both are safe for concurrent EncodeAll/DecodeAll.
package zstdcodec

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/discochess/bucketstore/internal/codec"
)

// Compile-time checks.
var (
	_ codec.Codec      = (*Codec)(nil)
	_ codec.BlockCodec = (*Codec)(nil)
)

// Codec implements zstd compression.
type Codec struct {
	level   zstd.EncoderLevel
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Option configures a Codec.
type Option func(*Codec)

// WithLevel sets the encoder level. Default is zstd.SpeedDefault.
func WithLevel(level zstd.EncoderLevel) Option {
	return func(c *Codec) { c.level = level }
}

// New returns a new zstd codec.
func New(opts ...Option) *Codec {
	c := &Codec{level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(c)
	}
	// Neither constructor fails with a nil writer/reader and valid options.
	c.encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	c.decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	return c
}

// Reader wraps r to decompress zstd data.
func (c *Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

// Writer wraps w to compress data with zstd.
func (c *Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
}

// EncodeAll compresses src with the shared encoder.
func (c *Codec) EncodeAll(src []byte) []byte {
	return c.encoder.EncodeAll(src, make([]byte, 0, len(src)))
}

// DecodeAll decompresses src with the shared decoder.
func (c *Codec) DecodeAll(src []byte) ([]byte, error) {
	return c.decoder.DecodeAll(src, nil)
}

// Name returns "zstd".
func (c *Codec) Name() string {
	return "zstd"
}
