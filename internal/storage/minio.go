package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accountserver/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore archives objects in a MinIO or S3 compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore validates cfg and builds the client. No request is made
// until EnsureBucket or Put.
func NewMinioStore(cfg config.MinioConfig) (*MinioStore, error) {
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return nil, errors.New("MINIO_ENDPOINT is required for the minio archive")
	case strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "":
		return nil, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio archive")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("MINIO_BUCKET is required for the minio archive")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioStore) EnsureBucket(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("minio bucket %s: %w", m.bucket, err)
	}
	if found {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio make bucket %s: %w", m.bucket, err)
	}
	return nil
}

// Put writes data in a single request with a Content-MD5 check. Archived
// events are small, so multipart upload is disabled.
func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      contentTypeOr(contentType),
		UserMetadata:     archiveMetadata,
		SendContentMd5:   true,
		DisableMultipart: true,
	})
	if err != nil {
		return fmt.Errorf("minio put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}

func (m *MinioStore) Bucket() string {
	return m.bucket
}
