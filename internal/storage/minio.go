package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/kozaktomas/face-verify/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectScheme prefixes locations of images kept in object storage.
const objectScheme = "s3://"

// MinIOStore implements Store for MinIO and S3-compatible storage.
// Locations have the form s3://bucket/key.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOStore creates a store from configuration and makes sure the bucket exists.
func NewMinIOStore(ctx context.Context, cfg *config.MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("MINIO_ENDPOINT is required for the minio image store")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return NewMinIOStoreFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewMinIOStoreFromClient wraps an existing client.
// prefix is prepended to all keys (e.g. "faces/").
func NewMinIOStoreFromClient(client *minio.Client, bucket, prefix string) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinIOStore) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put uploads data as image/jpeg.
func (s *MinIOStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return ObjectLocation(s.bucket, key), nil
}

// Get downloads the object at location.
func (s *MinIOStore) Get(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := ParseObjectLocation(location)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinIOError(location, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinIOError(location, err)
	}
	return data, nil
}

// Delete removes the object at location. Missing objects are not an error.
func (s *MinIOStore) Delete(ctx context.Context, location string) error {
	bucket, key, err := ParseObjectLocation(location)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(mapMinIOError(location, err), ErrNotFound) {
			return nil
		}
		return fmt.Errorf("removing %s: %w", location, err)
	}
	return nil
}

func mapMinIOError(location string, err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
		return fmt.Errorf("image %s: %w", location, ErrNotFound)
	}
	return fmt.Errorf("reading %s: %w", location, err)
}

// ObjectLocation formats the location of an object.
func ObjectLocation(bucket, key string) string {
	return objectScheme + bucket + "/" + strings.TrimPrefix(key, "/")
}

// IsObjectLocation reports whether location refers to object storage.
func IsObjectLocation(location string) bool {
	return strings.HasPrefix(location, objectScheme)
}

// ParseObjectLocation splits an s3://bucket/key location.
func ParseObjectLocation(location string) (bucket, key string, err error) {
	if !IsObjectLocation(location) {
		return "", "", fmt.Errorf("not an object location: %q", location)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(location, objectScheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed object location: %q", location)
	}
	return bucket, key, nil
}
