package memorybucketstorefx

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/discochess/bucketstore"
	"github.com/discochess/bucketstore/internal/store/memstore"
)

func TestModule(t *testing.T) {
	var (
		s    *bucketstore.BucketStore
		rows *memstore.Store
	)
	app := fxtest.New(t,
		fx.Supply(zap.NewNop()),
		Module,
		fx.Populate(&s, &rows),
	)
	app.RequireStart()

	ctx := context.Background()
	if err := s.Write(ctx, bucketstore.Entry{Key: []byte("k"), Value: []byte("v")}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if rows.Len() != 1 {
		t.Errorf("rows = %d, want 1", rows.Len())
	}

	app.RequireStop()
	if _, err := s.Load(ctx, []byte("k")); !errors.Is(err, bucketstore.ErrClosed) {
		t.Errorf("Load() after stop error = %v, want ErrClosed", err)
	}
}
