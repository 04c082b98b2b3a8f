package bucketstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// exportMagic opens every export stream.
var exportMagic = []byte("BKSTORE1")

// importBatchSize is the number of records applied per WriteBatch on import.
const importBatchSize = 256

// Record field numbers.
const (
	recordKey        protowire.Number = 1
	recordValue      protowire.Number = 2
	recordExpiration protowire.Number = 3
)

// maxRecordSize bounds a single record read from an import stream.
const maxRecordSize = 64 << 20

// Export writes every live entry to w as a compressed stream of
// length-prefixed records and returns the number of entries written.
func (s *BucketStore) Export(ctx context.Context, w io.Writer) (int, error) {
	zw, err := s.compression.Writer(w)
	if err != nil {
		return 0, fmt.Errorf("creating %s writer: %w", s.compression.Name(), err)
	}
	bw := bufio.NewWriter(zw)

	if _, err := bw.Write(exportMagic); err != nil {
		zw.Close()
		return 0, fmt.Errorf("writing export header: %w", err)
	}

	var (
		mu  sync.Mutex
		n   int
		buf []byte
	)
	err = s.Process(ctx, nil, func(e Entry, _ *TaskContext) error {
		mu.Lock()
		defer mu.Unlock()
		buf = protowire.AppendBytes(buf[:0], appendRecord(nil, e))
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing export record: %w", err)
		}
		n++
		return nil
	})
	if err != nil {
		zw.Close()
		return n, err
	}

	if err := bw.Flush(); err != nil {
		zw.Close()
		return n, fmt.Errorf("flushing export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("closing %s writer: %w", s.compression.Name(), err)
	}
	return n, nil
}

// Import reads a stream produced by Export and writes its entries.
// A record that expired since the export deletes its key instead. It returns
// the number of records read.
func (s *BucketStore) Import(ctx context.Context, r io.Reader) (int, error) {
	zr, err := s.compression.Reader(r)
	if err != nil {
		return 0, fmt.Errorf("%w: opening import stream: %w", ErrCorruptData, err)
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	header := make([]byte, len(exportMagic))
	if _, err := io.ReadFull(br, header); err != nil || !bytes.Equal(header, exportMagic) {
		return 0, fmt.Errorf("%w: missing export header", ErrCorruptData)
	}

	var (
		batch Batch
		n     int
	)
	for {
		e, err := readRecord(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		batch.Put(e)
		n++

		if batch.Len() >= importBatchSize {
			if err := s.WriteBatch(ctx, &batch); err != nil {
				return n, err
			}
			batch.Reset()
		}
	}

	if batch.Len() > 0 {
		if err := s.WriteBatch(ctx, &batch); err != nil {
			return n, err
		}
	}
	s.logger.Info("import finished")
	return n, nil
}

func appendRecord(b []byte, e Entry) []byte {
	b = protowire.AppendTag(b, recordKey, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Key)
	b = protowire.AppendTag(b, recordValue, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Value)
	if !e.Expiration.IsZero() {
		b = protowire.AppendTag(b, recordExpiration, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(e.Expiration.UnixNano()))
	}
	return b
}

// readRecord reads one length-prefixed record. io.EOF is returned only at a
// record boundary.
func readRecord(br *bufio.Reader) (Entry, error) {
	size, err := binary.ReadUvarint(br)
	if errors.Is(err, io.EOF) {
		return Entry{}, io.EOF
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: reading record length: %w", ErrCorruptData, err)
	}
	if size > maxRecordSize {
		return Entry{}, fmt.Errorf("%w: record of %d bytes", ErrCorruptData, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		return Entry{}, fmt.Errorf("%w: reading record: %w", ErrCorruptData, err)
	}
	return parseRecord(data)
}

func parseRecord(data []byte) (Entry, error) {
	var e Entry
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Entry{}, fmt.Errorf("%w: %w", ErrCorruptData, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == recordKey && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return Entry{}, fmt.Errorf("%w: %w", ErrCorruptData, protowire.ParseError(m))
			}
			e.Key = bytes.Clone(v)
			n = m
		case num == recordValue && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return Entry{}, fmt.Errorf("%w: %w", ErrCorruptData, protowire.ParseError(m))
			}
			e.Value = bytes.Clone(v)
			n = m
		case num == recordExpiration && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return Entry{}, fmt.Errorf("%w: %w", ErrCorruptData, protowire.ParseError(m))
			}
			e.Expiration = time.Unix(0, protowire.DecodeZigZag(v))
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Entry{}, fmt.Errorf("%w: %w", ErrCorruptData, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}

	if e.Key == nil {
		return Entry{}, fmt.Errorf("%w: record without key", ErrCorruptData)
	}
	return e, nil
}
