package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUploadRejected is returned by a MemoryGateway configured to fail uploads.
var ErrUploadRejected = errors.New("upload rejected")

// MemoryGateway keeps objects in memory. It records call counts so tests can
// assert which operations ran.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailUploads makes every Upload return ErrUploadRejected.
	FailUploads bool

	ExistsCalls   int
	DownloadCalls int
	UploadCalls   int
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{objects: make(map[string][]byte)}
}

// Exists reports whether the object is stored.
func (g *MemoryGateway) Exists(ctx context.Context, bucket, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ExistsCalls++
	_, ok := g.objects[memoryKey(bucket, key)]
	return ok, nil
}

// Download returns a copy of the stored object.
func (g *MemoryGateway) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DownloadCalls++
	data, ok := g.objects[memoryKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Upload stores a copy of data.
func (g *MemoryGateway) Upload(ctx context.Context, data []byte, bucket, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.UploadCalls++
	if g.FailUploads {
		return ErrUploadRejected
	}
	g.objects[memoryKey(bucket, key)] = append([]byte(nil), data...)
	return nil
}

// Put seeds an object without counting as an upload.
func (g *MemoryGateway) Put(bucket, key string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[memoryKey(bucket, key)] = append([]byte(nil), data...)
}

// Close releases resources.
func (g *MemoryGateway) Close() error {
	return nil
}

func memoryKey(bucket, key string) string {
	return bucket + "/" + key
}
