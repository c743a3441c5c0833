package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"factseeker/internal/logger"
)

// ErrNotFound marks a key that does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// Store is an S3-backed object store for index directories. Every call is
// bounded by the configured per-operation timeout.
type Store struct {
	bucket   string
	timeout  time.Duration
	s3Client *s3.Client
}

// New builds a Store using the ambient AWS credential chain.
func New(ctx context.Context, bucket string, timeout time.Duration) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, timeout), nil
}

// NewWithClient builds a Store around an existing S3 client.
func NewWithClient(client *s3.Client, bucket string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{bucket: bucket, timeout: timeout, s3Client: client}
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns the object's content, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()

	return io.ReadAll(out.Body)
}

// Put writes data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

// List returns all keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		pageCtx, cancel := s.opCtx(ctx)
		page, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// CommonPrefixes returns the first-level "directories" under prefix, using
// "/" as the delimiter. Used to enumerate partition directories.
func (s *Store) CommonPrefixes(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var prefixes []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		pageCtx, cancel := s.opCtx(ctx)
		page, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				prefixes = append(prefixes, strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/"))
			}
		}
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// DownloadPrefix materializes every object under prefix into dir, preserving
// the path relative to the prefix. Returns ErrNotFound when the prefix holds
// no objects.
func (s *Store) DownloadPrefix(ctx context.Context, prefix, dir string) error {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: prefix %s", ErrNotFound, prefix)
	}

	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if rel == "" || strings.Contains(rel, "..") {
			continue
		}
		data, err := s.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", key, err)
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// UploadDir puts every regular file under dir to the given key prefix.
func (s *Store) UploadDir(ctx context.Context, dir, prefix string) error {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		key := prefix + filepath.ToSlash(rel)
		if err := s.Put(ctx, key, data); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		logger.Debug("Uploaded object", "bucket", s.bucket, "key", key, "bytes", len(data))
		return nil
	})
}

// Fingerprint summarizes the ETag and LastModified of every object under
// prefix into one stable string. The partition watcher compares fingerprints
// between polls to detect rebuilt partitions.
func (s *Store) Fingerprint(ctx context.Context, prefix string) (string, error) {
	var parts []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		pageCtx, cancel := s.opCtx(ctx)
		page, err := paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return "", err
		}
		for _, obj := range page.Contents {
			etag, mtime := "", ""
			if obj.ETag != nil {
				etag = *obj.ETag
			}
			if obj.LastModified != nil {
				mtime = obj.LastModified.UTC().Format(time.RFC3339)
			}
			if obj.Key != nil {
				parts = append(parts, fmt.Sprintf("%s|%s|%s", *obj.Key, etag, mtime))
			}
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ";"), nil
}
