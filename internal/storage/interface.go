// Package storage keeps generated assets in S3 or on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zfogg/beacon/internal/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Object describes a stored object.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// ObjectStore stores immutable blobs under slash-separated keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var (
	_ ObjectStore = (*S3Store)(nil)
	_ ObjectStore = (*LocalStore)(nil)
)

// New opens the store selected by cfg. Local objects are served from
// localBaseURL unless PublicBaseURL is set.
func New(ctx context.Context, cfg config.StorageConfig, localBaseURL string) (ObjectStore, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg.Region, cfg.Bucket, cfg.PublicBaseURL)
	case "local", "":
		base := cfg.PublicBaseURL
		if base == "" {
			base = localBaseURL
		}
		return NewLocalStore(cfg.LocalDir, base)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
