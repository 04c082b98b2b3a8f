package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/discochess/bucketstore/internal/store"
)

func TestStore_SelectMissing(t *testing.T) {
	s := New()
	_, err := s.Select(context.Background(), 1)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Select() error = %v, want ErrNotFound", err)
	}
}

func TestStore_UpsertSelectCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	payload := []byte("abc")

	if err := s.Upsert(ctx, store.Row{BucketID: 1, Payload: payload, EarliestExpiration: store.NoExpiration}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	payload[0] = 'x'

	got, err := s.Select(ctx, 1)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Select() = %q, want %q (caller mutation leaked)", got, "abc")
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), store.Row{BucketID: 9})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed update", s.Len())
	}
}

func TestStore_StreamExpired(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.UnixMilli(10_000)

	rows := []store.Row{
		{BucketID: 3, Payload: []byte("c"), EarliestExpiration: 5_000},
		{BucketID: 1, Payload: []byte("a"), EarliestExpiration: store.NoExpiration},
		{BucketID: 2, Payload: []byte("b"), EarliestExpiration: 20_000},
		{BucketID: 4, Payload: []byte("d"), EarliestExpiration: 10_000},
	}
	for _, r := range rows {
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	it, err := s.StreamExpired(ctx, now)
	if err != nil {
		t.Fatalf("StreamExpired() error = %v", err)
	}
	defer it.Close()

	var ids []uint32
	for it.Next() {
		ids = append(ids, it.Row().BucketID)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 4 {
		t.Errorf("StreamExpired() ids = %v, want [3 4]", ids)
	}

	all, err := s.StreamAll(ctx)
	if err != nil {
		t.Fatalf("StreamAll() error = %v", err)
	}
	var n int
	for all.Next() {
		n++
	}
	if n != 4 {
		t.Errorf("StreamAll() returned %d rows, want 4", n)
	}
}

func TestStore_BatchAndTruncate(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := uint32(1); i <= 3; i++ {
		s.Upsert(ctx, store.Row{BucketID: i, Payload: []byte{byte(i)}})
	}

	if err := s.BatchUpdate(ctx, []store.Row{{BucketID: 1, Payload: []byte("new")}, {BucketID: 99}}); err != nil {
		t.Fatalf("BatchUpdate() error = %v", err)
	}
	if got, _ := s.Select(ctx, 1); string(got) != "new" {
		t.Errorf("Select(1) = %q, want %q", got, "new")
	}
	if _, ok := s.Row(99); ok {
		t.Error("BatchUpdate() created a missing row")
	}

	if err := s.BatchDelete(ctx, []uint32{1, 2}); err != nil {
		t.Fatalf("BatchDelete() error = %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	if err := s.Truncate(ctx); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Truncate, want 0", s.Len())
	}
}
