package fnvkeymap

import (
	"fmt"
	"testing"

	"github.com/discochess/bucketstore/internal/keymap"
)

func TestMapper_Name(t *testing.T) {
	m := New()
	if got := m.Name(); got != "fnv32" {
		t.Errorf("Name() = %q, want %q", got, "fnv32")
	}
}

func TestMapper_BucketID_Masked(t *testing.T) {
	m := New()

	tests := []struct {
		name string
		key  []byte
	}{
		{name: "empty key", key: []byte{}},
		{name: "short key", key: []byte("a")},
		{name: "binary key", key: []byte{0x00, 0xff, 0x10, 0x7f}},
		{name: "long key", key: []byte("user:session:0f3c9b1e-5a7d-4c11-9d6e-2b8a0f4e7c21")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := m.BucketID(tt.key)
			if id&^keymap.DefaultMask != 0 {
				t.Errorf("BucketID() = %#x has bits outside mask %#x", id, keymap.DefaultMask)
			}
		})
	}
}

func TestMapper_BucketID_Consistency(t *testing.T) {
	m := New()
	key := []byte("consistent")

	id1 := m.BucketID(key)
	id2 := New().BucketID(key)

	if id1 != id2 {
		t.Errorf("BucketID() not consistent: got %#x and %#x", id1, id2)
	}
}

func TestMapper_BucketID_KnownValue(t *testing.T) {
	// FNV-1a("a") = 0xe40c292c.
	m := NewWithMask(0xffffffff)
	if got := m.BucketID([]byte("a")); got != 0xe40c292c {
		t.Errorf("BucketID(a) = %#x, want %#x", got, uint32(0xe40c292c))
	}
}

func TestMapper_BucketID_Distribution(t *testing.T) {
	m := NewWithMask(0xff000000) // 256 buckets

	ids := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		ids[m.BucketID([]byte(fmt.Sprintf("key-%d", i)))] = true
	}

	// 1000 keys over 256 buckets should touch most of them.
	if len(ids) < 200 {
		t.Errorf("expected keys spread over most buckets, got %d distinct ids", len(ids))
	}
}

func BenchmarkMapper_BucketID(b *testing.B) {
	m := New()
	key := []byte("user:session:0f3c9b1e-5a7d-4c11-9d6e-2b8a0f4e7c21")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.BucketID(key)
	}
}
