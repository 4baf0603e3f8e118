package emulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/config"
)

// blobStore holds export files under slash-separated keys.
type blobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// blobResolver maps export URIs onto stores: s3:// goes to the configured
// S3 endpoint, gs:// to a directory per bucket under the export dir, and
// file:// or a bare path to the local filesystem.
type blobResolver struct {
	exportDir string
	s3        *s3.Client
}

func newBlobResolver(cfg *config.Config) *blobResolver {
	r := &blobResolver{exportDir: cfg.EmulatorExportDir}
	if cfg.S3Endpoint != "" {
		r.s3 = s3.New(s3.Options{
			BaseEndpoint: aws.String(cfg.S3Endpoint),
			Region:       cfg.S3Region,
			Credentials:  credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			UsePathStyle: true,
		})
	}
	return r
}

// resolve returns the store for uri and the key prefix within it.
func (r *blobResolver) resolve(uri string) (blobStore, string, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		if r.s3 == nil {
			return nil, "", status.Error(codes.FailedPrecondition, "s3:// destinations need S3_ENDPOINT to be configured")
		}
		bucket, prefix := splitBucket(strings.TrimPrefix(uri, "s3://"))
		if bucket == "" {
			return nil, "", status.Errorf(codes.InvalidArgument, "invalid URI %q", uri)
		}
		return &s3Store{client: r.s3, bucket: bucket}, prefix, nil
	case strings.HasPrefix(uri, "gs://"):
		bucket, prefix := splitBucket(strings.TrimPrefix(uri, "gs://"))
		if bucket == "" {
			return nil, "", status.Errorf(codes.InvalidArgument, "invalid URI %q", uri)
		}
		return dirStore{root: filepath.Join(r.exportDir, bucket)}, prefix, nil
	case strings.HasPrefix(uri, "file://"):
		return dirStore{root: strings.TrimPrefix(uri, "file://")}, "", nil
	case strings.Contains(uri, "://"):
		return nil, "", status.Errorf(codes.InvalidArgument, "unsupported URI scheme in %q", uri)
	}
	return dirStore{root: uri}, "", nil
}

func splitBucket(s string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.Trim(s, "/"), "/")
	return bucket, prefix
}

func joinKey(parts ...string) string {
	var keep []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, "/")
}

type dirStore struct {
	root string
}

func (d dirStore) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

func (d dirStore) Put(_ context.Context, key string, data []byte) error {
	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(p), err)
	}
	return os.WriteFile(p, data, 0o644)
}

func (d dirStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, status.Errorf(codes.NotFound, "%s not found", key)
	}
	return b, err
}

func (d dirStore) List(_ context.Context, prefix string) ([]string, error) {
	base := d.path(prefix)
	var keys []string
	err := filepath.WalkDir(base, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, status.Errorf(codes.NotFound, "%s not found", base)
	}
	sort.Strings(keys)
	return keys, err
}

type s3Store struct {
	client *s3.Client
	bucket string
}

func (s *s3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, status.Errorf(codes.NotFound, "s3://%s/%s not found", s.bucket, key)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}
