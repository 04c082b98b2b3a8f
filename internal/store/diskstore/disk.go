// Package diskstore implements a filesystem row store: one file per bucket.
//
// Each file holds an 8-byte big-endian earliest expiration followed by the
// payload. Writes go to a temporary file which is renamed into place, so a
// row is always either the old or the new version.
package diskstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/discochess/bucketstore/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

const (
	rowsDir   = "rows"
	rowSuffix = ".row"
	headerLen = 8
)

// Store is a disk-based filesystem row store.
type Store struct {
	root string
}

// New creates a new disk store rooted at the given directory.
// The directory must exist; the rows subdirectory is created if needed.
func New(root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	if err := os.MkdirAll(filepath.Join(root, rowsDir), 0755); err != nil {
		return nil, fmt.Errorf("creating rows directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Select reads the payload of a row.
func (s *Store) Select(ctx context.Context, bucketID uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, err := s.readRow(bucketID)
	if err != nil {
		return nil, err
	}
	return row.Payload, nil
}

// Upsert writes a row, replacing any existing file.
func (s *Store) Upsert(ctx context.Context, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeRow(row)
}

// Update replaces an existing row.
func (s *Store) Update(ctx context.Context, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.rowPath(row.BucketID)); err != nil {
		if os.IsNotExist(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("stat row: %w", err)
	}
	return s.writeRow(row)
}

// Delete removes a row file.
func (s *Store) Delete(ctx context.Context, bucketID uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.rowPath(bucketID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing row: %w", err)
	}
	return nil
}

// BatchUpdate replaces several rows. Missing rows are skipped.
func (s *Store) BatchUpdate(ctx context.Context, rows []store.Row) error {
	for _, row := range rows {
		if err := s.Update(ctx, row); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// BatchDelete removes several rows.
func (s *Store) BatchDelete(ctx context.Context, bucketIDs []uint32) error {
	for _, id := range bucketIDs {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StreamAll lists row files and reads them lazily.
func (s *Store) StreamAll(ctx context.Context) (store.Rows, error) {
	return s.stream(ctx, func(store.Row) bool { return true })
}

// StreamExpired reads row headers and yields rows expired at asOf.
func (s *Store) StreamExpired(ctx context.Context, asOf time.Time) (store.Rows, error) {
	return s.stream(ctx, func(r store.Row) bool { return r.ExpiredAt(asOf) })
}

// Truncate removes every row file.
func (s *Store) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.root, rowsDir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing rows directory: %w", err)
	}
	return os.MkdirAll(dir, 0755)
}

// Close releases any resources held by the store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) stream(ctx context.Context, keep func(store.Row) bool) (store.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, rowsDir))
	if err != nil {
		return nil, fmt.Errorf("listing rows: %w", err)
	}
	var ids []uint32
	for _, e := range entries {
		if id, ok := parseRowName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &fileRows{ctx: ctx, store: s, ids: ids, keep: keep}, nil
}

func (s *Store) readRow(bucketID uint32) (store.Row, error) {
	data, err := os.ReadFile(s.rowPath(bucketID))
	if err != nil {
		if os.IsNotExist(err) {
			return store.Row{}, store.ErrNotFound
		}
		return store.Row{}, fmt.Errorf("reading row: %w", err)
	}
	if len(data) < headerLen {
		return store.Row{}, fmt.Errorf("reading row %d: %w", bucketID, io.ErrUnexpectedEOF)
	}
	return store.Row{
		BucketID:           bucketID,
		EarliestExpiration: int64(binary.BigEndian.Uint64(data[:headerLen])),
		Payload:            data[headerLen:],
	}, nil
}

func (s *Store) writeRow(row store.Row) error {
	dir := filepath.Join(s.root, rowsDir)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var header [headerLen]byte
	binary.BigEndian.PutUint64(header[:], uint64(row.EarliestExpiration))
	if _, err := tmp.Write(header[:]); err != nil {
		tmp.Close()
		return fmt.Errorf("writing row: %w", err)
	}
	if _, err := tmp.Write(row.Payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing row: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing row: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing row: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.rowPath(row.BucketID)); err != nil {
		return fmt.Errorf("renaming row: %w", err)
	}
	return nil
}

// rowPath returns the filesystem path for a row.
func (s *Store) rowPath(bucketID uint32) string {
	return filepath.Join(s.root, rowsDir, rowName(bucketID))
}

// rowName returns the filename for a bucket id.
func rowName(bucketID uint32) string {
	return fmt.Sprintf("%08x%s", bucketID, rowSuffix)
}

func parseRowName(name string) (uint32, bool) {
	hex, ok := strings.CutSuffix(name, rowSuffix)
	if !ok || len(hex) != 8 {
		return 0, false
	}
	id, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// fileRows reads row files one at a time. Rows removed after listing are skipped.
type fileRows struct {
	ctx   context.Context
	store *Store
	ids   []uint32
	keep  func(store.Row) bool

	cur store.Row
	err error
}

func (r *fileRows) Next() bool {
	for len(r.ids) > 0 && r.err == nil {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return false
		}
		id := r.ids[0]
		r.ids = r.ids[1:]
		row, err := r.store.readRow(id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			r.err = err
			return false
		}
		if r.keep(row) {
			r.cur = row
			return true
		}
	}
	return false
}

func (r *fileRows) Row() store.Row { return r.cur }

func (r *fileRows) Err() error { return r.err }

func (r *fileRows) Close() error {
	r.ids = nil
	return nil
}
