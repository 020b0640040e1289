package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/jjudge-oj/accountserver/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// GCSStore archives objects in a Google Cloud Storage bucket. Writes are
// conditional on the object not existing yet.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	projectID string
}

// NewGCSStore validates cfg and opens a client, using application default
// credentials unless a credentials file is configured.
func NewGCSStore(ctx context.Context, cfg config.GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("GCS_BUCKET is required for the gcs archive")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, projectID: cfg.ProjectID}, nil
}

// EnsureBucket creates the bucket when missing, which needs GCS_PROJECT_ID.
func (g *GCSStore) EnsureBucket(ctx context.Context) error {
	handle := g.client.Bucket(g.bucket)
	_, err := handle.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("gcs bucket %s: %w", g.bucket, err)
	case strings.TrimSpace(g.projectID) == "":
		return fmt.Errorf("gcs bucket %s does not exist and GCS_PROJECT_ID is not set", g.bucket)
	}
	if err := handle.Create(ctx, g.projectID, nil); err != nil {
		return fmt.Errorf("gcs create bucket %s: %w", g.bucket, err)
	}
	return nil
}

// Put uploads data in one request with a CRC32C check. An existing object
// under key yields ErrObjectExists.
func (g *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	object := g.client.Bucket(g.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := object.NewWriter(ctx)
	w.ContentType = contentTypeOr(contentType)
	w.Metadata = archiveMetadata
	w.ChunkSize = 0
	w.CRC32C = crc32.Checksum(data, castagnoli)
	w.SendCRC32C = true

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return g.putError(key, err)
	}
	if err := w.Close(); err != nil {
		return g.putError(key, err)
	}
	return nil
}

func (g *GCSStore) putError(key string, err error) error {
	if preconditionFailed(err) {
		return fmt.Errorf("gcs put %s/%s: %w", g.bucket, key, ErrObjectExists)
	}
	return fmt.Errorf("gcs put %s/%s: %w", g.bucket, key, err)
}

func preconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}

func (g *GCSStore) Bucket() string {
	return g.bucket
}
