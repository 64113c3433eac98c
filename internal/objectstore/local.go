package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalConfig configures a filesystem gateway.
type LocalConfig struct {
	Path string `yaml:"path"`
}

// LocalGateway maps buckets to directories under a base path.
type LocalGateway struct {
	basePath string
}

// NewLocalGateway creates a local disk gateway.
func NewLocalGateway(basePath string) (*LocalGateway, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("local object store path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create object store directory: %w", err)
	}
	return &LocalGateway{basePath: basePath}, nil
}

// Exists checks for the object file.
func (g *LocalGateway) Exists(ctx context.Context, bucket, key string) (bool, error) {
	p, err := g.objectPath(bucket, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// Download reads the object file.
func (g *LocalGateway) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	p, err := g.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Upload writes to a temp file first, then renames it into place.
func (g *LocalGateway) Upload(ctx context.Context, data []byte, bucket, key string) error {
	p, err := g.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmpPath := p + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rename object: %w", err)
	}
	return nil
}

// Close releases resources.
func (g *LocalGateway) Close() error {
	return nil
}

// objectPath resolves bucket/key under the base path, rejecting keys that
// would escape it.
func (g *LocalGateway) objectPath(bucket, key string) (string, error) {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("bucket and key are required")
	}
	root := filepath.Join(g.basePath, bucket)
	p := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}
