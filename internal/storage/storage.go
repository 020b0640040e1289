// Package storage keeps the account event archive in an object store.
//
// Archived objects are write-once: each key is written a single time and
// never read back or removed by this service.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrObjectExists is returned when a write-once key is already taken.
var ErrObjectExists = errors.New("archive object already exists")

const defaultContentType = "application/octet-stream"

// ObjectStorage is the object store behind the event archive.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Bucket() string
}

// archiveMetadata is attached to every archived object.
var archiveMetadata = map[string]string{
	"written-by": "accountserver",
}

func checkKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.New("archive key is required")
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("archive key %q must be relative", key)
	case strings.Contains(key, ".."):
		return fmt.Errorf("archive key %q must not contain '..'", key)
	}
	return nil
}

func contentTypeOr(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return defaultContentType
	}
	return contentType
}
