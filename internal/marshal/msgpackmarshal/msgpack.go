// Package msgpackmarshal provides a MessagePack marshaller.
package msgpackmarshal

import (
	"github.com/hashicorp/go-msgpack/codec"

	"github.com/discochess/bucketstore/internal/marshal"
)

// Compile-time check that Marshaller implements marshal.Marshaller.
var _ marshal.Marshaller = (*Marshaller)(nil)

// Marshaller implements MessagePack encoding.
type Marshaller struct {
	handle *codec.MsgpackHandle
}

// New returns a new MessagePack marshaller.
func New() *Marshaller {
	return &Marshaller{handle: &codec.MsgpackHandle{}}
}

// Name returns "msgpack".
func (m *Marshaller) Name() string {
	return "msgpack"
}

// Marshal encodes v as MessagePack.
func (m *Marshaller) Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, m.handle).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

// Unmarshal decodes MessagePack data into v.
func (m *Marshaller) Unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, m.handle).Decode(v)
}
