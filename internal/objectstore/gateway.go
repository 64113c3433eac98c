// Package objectstore provides the gateway to the blob store holding
// deployed model artifacts. Backends: S3-compatible, Google Cloud Storage,
// a local directory tree, and an in-memory map for tests.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/modelgate/internal/retry"
)

// ErrNotFound is returned (wrapped) when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Gateway checks, uploads, and downloads named blobs in named buckets.
type Gateway interface {
	// Exists reports whether key is present in bucket. A missing object is
	// (false, nil), never an error.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Download returns the object's bytes.
	Download(ctx context.Context, bucket, key string) ([]byte, error)

	// Upload writes data to bucket/key, replacing any existing object.
	Upload(ctx context.Context, data []byte, bucket, key string) error

	// Close releases resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of "s3", "gcs", "local", "memory".
	Backend string      `yaml:"backend"`
	S3      S3Config    `yaml:"s3"`
	GCS     GCSConfig   `yaml:"gcs"`
	Local   LocalConfig `yaml:"local"`
	// Retry wraps the backend in a Retrying gateway when MaxAttempts > 1.
	Retry retry.Config `yaml:"retry"`
}

// New constructs the configured gateway. It is meant to be called once at
// process start and shared by reference.
func New(ctx context.Context, cfg Config) (Gateway, error) {
	gw, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts > 1 {
		return NewRetrying(gw, cfg.Retry), nil
	}
	return gw, nil
}

func newBackend(ctx context.Context, cfg Config) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "s3":
		return NewS3Gateway(ctx, &cfg.S3)
	case "gcs":
		return NewGCSGateway(ctx, &cfg.GCS)
	case "local":
		return NewLocalGateway(cfg.Local.Path)
	case "memory":
		return NewMemoryGateway(), nil
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
}
