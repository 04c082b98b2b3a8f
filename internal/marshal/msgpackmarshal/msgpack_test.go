package msgpackmarshal

import (
	"bytes"
	"testing"
)

type record struct {
	Key        []byte
	Value      []byte
	Expiration int64
}

func TestMarshaller_Name(t *testing.T) {
	if got := New().Name(); got != "msgpack" {
		t.Errorf("Name() = %q, want %q", got, "msgpack")
	}
}

func TestMarshaller_RoundTrip(t *testing.T) {
	m := New()
	in := []record{
		{Key: []byte("a"), Value: []byte{0x00, 0x01, 0xff}, Expiration: -1},
		{Key: []byte("b"), Value: nil, Expiration: 1700000000000},
	}

	data, err := m.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out []record
	if err := m.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(out) != len(in) {
		t.Fatalf("Unmarshal() got %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if !bytes.Equal(out[i].Key, in[i].Key) || !bytes.Equal(out[i].Value, in[i].Value) || out[i].Expiration != in[i].Expiration {
			t.Errorf("record %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestMarshaller_Unmarshal_Truncated(t *testing.T) {
	m := New()
	data, err := m.Marshal([]record{{Key: []byte("key"), Value: []byte("value"), Expiration: 7}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out []record
	if err := m.Unmarshal(data[:3], &out); err == nil {
		t.Error("Unmarshal() expected error for truncated data, got nil")
	}
}
