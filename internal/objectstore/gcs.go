package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures a Google Cloud Storage gateway.
type GCSConfig struct {
	// CredentialsFile is a service account key; empty uses application
	// default credentials.
	CredentialsFile string `yaml:"credentials_file"`
	Prefix          string `yaml:"prefix"`
}

// GCSGateway stores objects in Google Cloud Storage buckets.
type GCSGateway struct {
	client *storage.Client
	prefix string
}

// NewGCSGateway creates a GCS client.
func NewGCSGateway(ctx context.Context, cfg *GCSConfig) (*GCSGateway, error) {
	if cfg == nil {
		cfg = &GCSConfig{}
	}
	var opts []option.ClientOption
	if keyPath := strings.TrimSpace(cfg.CredentialsFile); keyPath != "" {
		if _, err := os.Stat(keyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", keyPath)
		}
		opts = append(opts, option.WithCredentialsFile(keyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSGateway{client: client, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Exists checks object attributes; ErrObjectNotExist maps to false.
func (g *GCSGateway) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := g.client.Bucket(bucket).Object(g.objectKey(key)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("gcs object attrs: %w", err)
}

// Download reads the object into memory.
func (g *GCSGateway) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	objectKey := g.objectKey(key)
	reader, err := g.client.Bucket(bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, objectKey, ErrNotFound)
		}
		return nil, fmt.Errorf("gcs open reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gcs read object: %w", err)
	}
	return data, nil
}

// Upload writes the object. The write is committed only when the writer
// closes without error.
func (g *GCSGateway) Upload(ctx context.Context, data []byte, bucket, key string) error {
	objectKey := g.objectKey(key)
	writer := g.client.Bucket(bucket).Object(objectKey).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(data); err != nil {
		writer.Close() //nolint:errcheck
		return fmt.Errorf("gcs write gs://%s/%s: %w", bucket, objectKey, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("gcs close writer for gs://%s/%s: %w", bucket, objectKey, err)
	}
	return nil
}

// Close closes the underlying client.
func (g *GCSGateway) Close() error {
	return g.client.Close()
}

func (g *GCSGateway) objectKey(key string) string {
	if g.prefix == "" {
		return key
	}
	return path.Join(g.prefix, key)
}
