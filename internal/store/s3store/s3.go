// Package s3store implements an AWS S3 row store: one object per bucket.
//
// The bucket's earliest expiration travels in the object's user metadata, so
// StreamExpired still has to fetch each listed object; this backend suits
// low write rates and large payloads rather than hot caches.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/discochess/bucketstore/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// expirationMeta is the user metadata key holding the earliest expiration.
const expirationMeta = "earliest-expiration"

// maxDeleteBatch is the S3 limit on keys per DeleteObjects call.
const maxDeleteBatch = 1000

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store is an AWS S3 row store.
type Store struct {
	client API
	bucket string
	prefix string
}

// New creates a new S3 store.
// The bucket must already exist.
func New(ctx context.Context, bucketName string, opts ...Option) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	s := &Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucketName,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Option configures a Store.
type Option func(*Store) error

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(s *Store) error {
		s.prefix = strings.TrimSuffix(prefix, "/")
		if s.prefix != "" {
			s.prefix += "/"
		}
		return nil
	}
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(s *Store) error {
		cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
		if err != nil {
			return fmt.Errorf("loading AWS config with region: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
		return nil
	}
}

// WithEndpoint sets a custom endpoint (for S3-compatible services like MinIO).
func WithEndpoint(endpoint string) Option {
	return func(s *Store) error {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("loading AWS config for endpoint: %w", err)
		}
		s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
		return nil
	}
}

// WithClient replaces the S3 client.
func WithClient(client API) Option {
	return func(s *Store) error {
		s.client = client
		return nil
	}
}

// Select downloads a row payload.
func (s *Store) Select(ctx context.Context, bucketID uint32) ([]byte, error) {
	row, err := s.get(ctx, s.rowKey(bucketID), bucketID)
	if err != nil {
		return nil, err
	}
	return row.Payload, nil
}

// Upsert uploads a row.
func (s *Store) Upsert(ctx context.Context, row store.Row) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.rowKey(row.BucketID)),
		Body:     bytes.NewReader(row.Payload),
		Metadata: map[string]string{expirationMeta: strconv.FormatInt(row.EarliestExpiration, 10)},
	})
	if err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	return nil
}

// Update uploads a row that must already exist.
func (s *Store) Update(ctx context.Context, row store.Row) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.rowKey(row.BucketID)),
	})
	if err != nil {
		if isNotFound(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("checking row: %w", err)
	}
	return s.Upsert(ctx, row)
}

// Delete removes a row object.
func (s *Store) Delete(ctx context.Context, bucketID uint32) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.rowKey(bucketID)),
	})
	if err != nil {
		return fmt.Errorf("deleting row: %w", err)
	}
	return nil
}

// BatchUpdate uploads several existing rows.
func (s *Store) BatchUpdate(ctx context.Context, rows []store.Row) error {
	for _, row := range rows {
		if err := s.Update(ctx, row); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// BatchDelete removes rows with DeleteObjects, 1000 keys per request.
func (s *Store) BatchDelete(ctx context.Context, bucketIDs []uint32) error {
	keys := make([]string, len(bucketIDs))
	for i, id := range bucketIDs {
		keys[i] = s.rowKey(id)
	}
	return s.deleteKeys(ctx, keys)
}

// StreamAll lists row objects and downloads them lazily.
func (s *Store) StreamAll(ctx context.Context) (store.Rows, error) {
	return s.stream(ctx, func(store.Row) bool { return true }), nil
}

// StreamExpired lists row objects and yields those expired at asOf.
func (s *Store) StreamExpired(ctx context.Context, asOf time.Time) (store.Rows, error) {
	return s.stream(ctx, func(r store.Row) bool { return r.ExpiredAt(asOf) }), nil
}

// Truncate deletes every row object under the prefix.
func (s *Store) Truncate(ctx context.Context) error {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, s.listInput())
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing rows: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return s.deleteKeys(ctx, keys)
}

// Close releases resources.
func (s *Store) Close() error {
	// S3 client doesn't need explicit closing.
	return nil
}

func (s *Store) get(ctx context.Context, key string, bucketID uint32) (store.Row, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return store.Row{}, store.ErrNotFound
		}
		return store.Row{}, fmt.Errorf("reading row: %w", err)
	}
	defer result.Body.Close()

	payload, err := io.ReadAll(result.Body)
	if err != nil {
		return store.Row{}, fmt.Errorf("reading row body: %w", err)
	}
	return store.Row{
		BucketID:           bucketID,
		Payload:            payload,
		EarliestExpiration: parseExpiration(result.Metadata),
	}, nil
}

func (s *Store) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("deleting rows: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("deleting row %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

func (s *Store) listInput() *s3.ListObjectsV2Input {
	return &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "rows/"),
	}
}

func (s *Store) stream(ctx context.Context, keep func(store.Row) bool) store.Rows {
	return &objectRows{
		ctx:   ctx,
		store: s,
		pages: s3.NewListObjectsV2Paginator(s.client, s.listInput()),
		keep:  keep,
	}
}

// rowKey returns the full object key for a row.
func (s *Store) rowKey(bucketID uint32) string {
	return s.prefix + "rows/" + fmt.Sprintf("%08x", bucketID)
}

// parseRowKey extracts the bucket id from an object key.
func (s *Store) parseRowKey(key string) (uint32, bool) {
	hex, ok := strings.CutPrefix(key, s.prefix+"rows/")
	if !ok || len(hex) != 8 {
		return 0, false
	}
	id, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

func parseExpiration(meta map[string]string) int64 {
	for k, v := range meta {
		if strings.EqualFold(k, expirationMeta) {
			if exp, err := strconv.ParseInt(v, 10, 64); err == nil {
				return exp
			}
		}
	}
	return store.NoExpiration
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// objectRows pages through a listing and downloads each row on demand.
type objectRows struct {
	ctx   context.Context
	store *Store
	pages *s3.ListObjectsV2Paginator
	keep  func(store.Row) bool

	keys []string
	cur  store.Row
	err  error
}

func (r *objectRows) Next() bool {
	for r.err == nil {
		if len(r.keys) == 0 {
			if !r.pages.HasMorePages() {
				return false
			}
			page, err := r.pages.NextPage(r.ctx)
			if err != nil {
				r.err = fmt.Errorf("listing rows: %w", err)
				return false
			}
			for _, obj := range page.Contents {
				r.keys = append(r.keys, aws.ToString(obj.Key))
			}
			continue
		}

		key := r.keys[0]
		r.keys = r.keys[1:]
		id, ok := r.store.parseRowKey(key)
		if !ok {
			continue
		}
		row, err := r.store.get(r.ctx, key, id)
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

func (r *objectRows) Row() store.Row { return r.cur }

func (r *objectRows) Err() error { return r.err }

func (r *objectRows) Close() error {
	r.keys = nil
	return nil
}
