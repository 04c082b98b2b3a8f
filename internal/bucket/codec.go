package bucket

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/discochess/bucketstore/internal/codec"
	"github.com/discochess/bucketstore/internal/marshal"
)

// Sentinel errors for payload encoding.
var (
	// ErrCorruptData indicates a stored payload could not be decoded.
	ErrCorruptData = errors.New("bucket: corrupt data")

	// ErrSerialization indicates entries could not be marshalled.
	ErrSerialization = errors.New("bucket: serialization failed")
)

// formatVersion is bumped whenever the wire layout changes.
const formatVersion = 1

// Envelope field numbers.
const (
	fieldVersion     protowire.Number = 1
	fieldCompression protowire.Number = 2
	fieldMarshaller  protowire.Number = 3
	fieldPayload     protowire.Number = 4
)

// wireEntry is the marshalled form of an Entry.
type wireEntry struct {
	Key        []byte `codec:"k"`
	Value      []byte `codec:"v"`
	Expiration int64  `codec:"e"` // unix nanos, NoExpiration when unset
}

// Codec converts buckets to and from row payloads.
//
// A payload is a protobuf-framed envelope carrying the format version, the
// compression and marshaller names, and the compressed marshalled entries.
// Codec is safe for concurrent use if its marshaller and compression are.
type Codec struct {
	marshaller  marshal.Marshaller
	compression codec.Codec
}

// NewCodec creates a codec.
func NewCodec(m marshal.Marshaller, c codec.Codec) *Codec {
	return &Codec{marshaller: m, compression: c}
}

// Encode serializes b. Failures wrap ErrSerialization.
func (c *Codec) Encode(b *Bucket) ([]byte, error) {
	entries := b.Entries()
	wire := make([]wireEntry, len(entries))
	for i, e := range entries {
		wire[i] = wireEntry{Key: e.Key, Value: e.Value, Expiration: NoExpiration}
		if !e.Expiration.IsZero() {
			wire[i].Expiration = e.Expiration.UnixNano()
		}
	}

	raw, err := c.marshaller.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: bucket %d: %w", ErrSerialization, b.ID, err)
	}
	payload, err := codec.Compress(c.compression, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: bucket %d: %w", ErrSerialization, b.ID, err)
	}

	out := make([]byte, 0, len(payload)+32)
	out = protowire.AppendTag(out, fieldVersion, protowire.VarintType)
	out = protowire.AppendVarint(out, formatVersion)
	out = protowire.AppendTag(out, fieldCompression, protowire.BytesType)
	out = protowire.AppendString(out, c.compression.Name())
	out = protowire.AppendTag(out, fieldMarshaller, protowire.BytesType)
	out = protowire.AppendString(out, c.marshaller.Name())
	out = protowire.AppendTag(out, fieldPayload, protowire.BytesType)
	out = protowire.AppendBytes(out, payload)
	return out, nil
}

// Decode parses a payload produced by Encode. Failures wrap ErrCorruptData;
// a corrupt bucket is never partially recovered.
func (c *Codec) Decode(id uint32, data []byte) (*Bucket, error) {
	var (
		version     uint64
		compression string
		marshaller  string
		payload     []byte
		seen        bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, corrupt(id, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(data)
		case num == fieldCompression && typ == protowire.BytesType:
			compression, n = protowire.ConsumeString(data)
		case num == fieldMarshaller && typ == protowire.BytesType:
			marshaller, n = protowire.ConsumeString(data)
		case num == fieldPayload && typ == protowire.BytesType:
			payload, n = protowire.ConsumeBytes(data)
			seen = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, corrupt(id, protowire.ParseError(n))
		}
		data = data[n:]
	}

	if version != formatVersion {
		return nil, corrupt(id, fmt.Errorf("unsupported format version %d", version))
	}
	if compression != c.compression.Name() {
		return nil, corrupt(id, fmt.Errorf("compression %q, want %q", compression, c.compression.Name()))
	}
	if marshaller != c.marshaller.Name() {
		return nil, corrupt(id, fmt.Errorf("marshaller %q, want %q", marshaller, c.marshaller.Name()))
	}
	if !seen {
		return nil, corrupt(id, errors.New("missing payload"))
	}

	raw, err := codec.Decompress(c.compression, payload)
	if err != nil {
		return nil, corrupt(id, err)
	}
	var wire []wireEntry
	if err := c.marshaller.Unmarshal(raw, &wire); err != nil {
		return nil, corrupt(id, err)
	}

	b := New(id)
	for _, w := range wire {
		e := Entry{Key: w.Key, Value: w.Value}
		if w.Expiration != NoExpiration {
			e.Expiration = time.Unix(0, w.Expiration)
		}
		b.entries[string(e.Key)] = e
	}
	b.recompute()
	return b, nil
}

func corrupt(id uint32, err error) error {
	return fmt.Errorf("%w: bucket %d: %w", ErrCorruptData, id, err)
}
