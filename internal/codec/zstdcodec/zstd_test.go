package zstdcodec

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/discochess/bucketstore/internal/codec"
)

func TestCodec_Name(t *testing.T) {
	if got := New().Name(); got != "zstd" {
		t.Errorf("Name() = %q, want %q", got, "zstd")
	}
}

func TestCodec_BlockRoundTrip(t *testing.T) {
	c := New(WithLevel(zstd.SpeedFastest))
	original := bytes.Repeat([]byte("bucket-row "), 500)

	compressed, err := codec.Compress(c, original)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(compressed) >= len(original) {
		t.Errorf("expected compression, got %d bytes from %d", len(compressed), len(original))
	}

	got, err := codec.Decompress(c, compressed)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("block round-trip mismatch")
	}
}

func TestCodec_StreamAndBlockInterop(t *testing.T) {
	c := New()
	original := []byte("written as a stream, read as a block")

	var buf bytes.Buffer
	w, err := c.Writer(&buf)
	if err != nil {
		t.Fatalf("Writer() error = %v", err)
	}
	if _, err := w.Write(original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := c.DecodeAll(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeAll() error = %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("DecodeAll() = %q, want %q", got, original)
	}

	r, err := c.Reader(bytes.NewReader(c.EncodeAll(original)))
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	defer r.Close()
	streamed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(streamed, original) {
		t.Errorf("stream read = %q, want %q", streamed, original)
	}
}

func TestCodec_ConcurrentBlocks(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := bytes.Repeat([]byte{byte(i)}, 1024)
			got, err := c.DecodeAll(c.EncodeAll(data))
			if err != nil {
				t.Errorf("DecodeAll() error = %v", err)
				return
			}
			if !bytes.Equal(got, data) {
				t.Errorf("goroutine %d: round-trip mismatch", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestCodec_DecodeAll_InvalidData(t *testing.T) {
	if _, err := codec.Decompress(New(), []byte("definitely not zstd")); err == nil {
		t.Error("Decompress() expected error for invalid data, got nil")
	}
}
