package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/varshakam/omr-eval/internal/config"
)

// Minio stores artifacts as objects in one bucket.
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio connects to the endpoint in cfg and creates the bucket if it
// does not exist yet.
func NewMinio(ctx context.Context, cfg config.StorageConfig) (*Minio, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
	}

	return &Minio{client: client, bucket: cfg.MinioBucket}, nil
}

// Put uploads r as an object with the given content type and returns the
// artifact URL. size may be -1 when unknown.
func (p *Minio) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	name = CleanName(name)
	if name == "" {
		return "", fmt.Errorf("invalid artifact name")
	}
	_, err := p.client.PutObject(ctx, p.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return URL(name), nil
}

// Get returns the object body. A missing key gives ErrNotFound.
func (p *Minio) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	name = CleanName(name)
	if name == "" {
		return nil, ErrNotFound
	}
	obj, err := p.client.GetObject(ctx, p.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

// Delete removes the object. Removing a missing key is not an error.
func (p *Minio) Delete(ctx context.Context, name string) error {
	name = CleanName(name)
	if name == "" {
		return ErrNotFound
	}
	return p.client.RemoveObject(ctx, p.bucket, name, minio.RemoveObjectOptions{})
}
