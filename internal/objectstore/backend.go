// Package objectstore lists, downloads and archives the files that feed each dataset.
package objectstore

import (
	"context"
	"fmt"

	"github.com/dbsmedya/goingest/internal/config"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Backend is the set of object store operations the pipeline depends on.
// Implementations report failures as *types.Error with kind StoreUnavailable
// or ObjectNotFound.
type Backend interface {
	Ping(ctx context.Context) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Download(ctx context.Context, key, dstPath string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// NewBackend builds the backend selected by cfg.Driver.
func NewBackend(ctx context.Context, cfg *config.StoreConfig) (Backend, error) {
	switch cfg.Driver {
	case "minio", "":
		return NewMinioBackend(cfg)
	case "s3":
		return NewS3Backend(ctx, cfg)
	case "local":
		return NewLocalBackend(cfg.LocalRoot, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
