// Package codec provides compression for bucket payloads and export streams.
package codec

import (
	"bytes"
	"fmt"
	"io"
)

// Codec provides compression and decompression functionality.
type Codec interface {
	// Reader wraps r to decompress data read from it.
	Reader(r io.Reader) (io.ReadCloser, error)
	// Writer wraps w to compress data written to it.
	Writer(w io.Writer) (io.WriteCloser, error)
	// Name identifies the compression format (e.g., "zstd", "gzip").
	// It is recorded alongside compressed payloads so a mismatched
	// codec is detected on read.
	Name() string
}

// BlockCodec is implemented by codecs that can compress a whole buffer
// without going through a stream. Compress and Decompress prefer it.
type BlockCodec interface {
	EncodeAll(src []byte) []byte
	DecodeAll(src []byte) ([]byte, error)
}

// Compress compresses src in one shot.
func Compress(c Codec, src []byte) ([]byte, error) {
	if bc, ok := c.(BlockCodec); ok {
		return bc.EncodeAll(src), nil
	}
	var buf bytes.Buffer
	w, err := c.Writer(&buf)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flushing compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decompresses src in one shot.
func Decompress(c Codec, src []byte) ([]byte, error) {
	if bc, ok := c.(BlockCodec); ok {
		data, err := bc.DecodeAll(src)
		if err != nil {
			return nil, fmt.Errorf("decompressing: %w", err)
		}
		return data, nil
	}
	r, err := c.Reader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return data, nil
}
