package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/standardbeagle/xref/internal/config"
)

// MinioStore keeps blobs in a MinIO (or any S3-compatible) bucket
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore wraps an existing client. prefix is prepended to every key.
func NewMinioStore(client *minio.Client, bucket, prefix string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}
}

// NewMinioStoreFromConfig connects to cfg.Endpoint. Credentials come from
// MINIO_ROOT_USER/MINIO_ROOT_PASSWORD or the AWS environment variables.
func NewMinioStoreFromConfig(cfg config.Store) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio blob store needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds: credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvMinio{},
			&credentials.EnvAWS{},
		}),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return NewMinioStore(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *MinioStore) key(name string) string {
	return path.Join(s.prefix, name)
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Put uploads a blob; object writes are atomic on the server side
func (s *MinioStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Get downloads a whole blob
func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// List returns all blob names with the given prefix
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/")
		if name != "" && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a blob
func (s *MinioStore) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return err
	}
	return nil
}
