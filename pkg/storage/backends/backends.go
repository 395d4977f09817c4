// Package backends selects the storage backend named by the configuration.
package backends

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/buildscan/pkg/config"
	"github.com/entrhq/buildscan/pkg/storage"
	"github.com/entrhq/buildscan/pkg/storage/file"
	"github.com/entrhq/buildscan/pkg/storage/s3"
	"github.com/entrhq/buildscan/pkg/storage/sqlite"
)

// ErrUnknownBackend is returned for a backend name with no implementation.
var ErrUnknownBackend = errors.New("unknown storage backend")

// New returns the storage factory for cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (storage.Factory, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return file.Factory(cfg.Dir), nil
	case config.BackendSQLite:
		return sqlite.Factory(cfg.SQLitePath), nil
	case config.BackendS3:
		client, err := s3.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return s3.Factory(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
