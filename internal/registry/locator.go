// Package registry locates, loads, and saves the production model artifact in
// the object store.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/haasonsaas/modelgate/internal/dataset"
	"github.com/haasonsaas/modelgate/internal/errs"
	"github.com/haasonsaas/modelgate/internal/model"
	"github.com/haasonsaas/modelgate/internal/objectstore"
)

// Handle references a remote artifact. It does not guarantee existence.
type Handle struct {
	Bucket string
	Key    string
}

// String renders the handle as bucket/key.
func (h Handle) String() string {
	return h.Bucket + "/" + h.Key
}

// Locator answers whether a production model exists and moves artifacts
// between local disk and the object store. A Locator belongs to one
// evaluation session; its cache is never shared between sessions.
type Locator struct {
	gateway objectstore.Gateway
	handle  Handle
	logger  *slog.Logger

	cache cached

	saveLocks sync.Map // key -> *sync.Mutex
}

// cached holds the artifact loaded on first access.
type cached struct {
	mu       sync.Mutex
	artifact *model.Artifact
	loaded   bool
}

// NewLocator creates a locator for the artifact at handle.
func NewLocator(gateway objectstore.Gateway, handle Handle, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		gateway: gateway,
		handle:  handle,
		logger:  logger,
	}
}

// Handle returns the configured remote reference.
func (l *Locator) Handle() Handle {
	return l.handle
}

// Exists reports whether an object is present at path. Only a confirmed
// not-found is absent: when the store cannot answer, Exists reports true so
// the following Load surfaces the failure instead of skipping the champion.
func (l *Locator) Exists(ctx context.Context, path string) bool {
	ok, err := l.Lookup(ctx, path)
	if err != nil {
		l.logger.WarnContext(ctx, "model existence check failed; deferring to load",
			"bucket", l.handle.Bucket,
			"key", path,
			"error", err)
		return true
	}
	return ok
}

// Lookup is Exists with the store error returned to the caller.
func (l *Locator) Lookup(ctx context.Context, path string) (bool, error) {
	ok, err := l.gateway.Exists(ctx, l.handle.Bucket, path)
	if err != nil {
		return false, errs.RemoteAccess(fmt.Sprintf("check %s/%s", l.handle.Bucket, path), err)
	}
	return ok, nil
}

// Load downloads and decodes the artifact at path.
func (l *Locator) Load(ctx context.Context, path string) (*model.Artifact, error) {
	data, err := l.gateway.Download(ctx, l.handle.Bucket, path)
	if err != nil {
		return nil, errs.RemoteAccess(fmt.Sprintf("download %s/%s", l.handle.Bucket, path), err)
	}
	artifact, err := model.Decode(data)
	if err != nil {
		return nil, errs.RemoteAccess(fmt.Sprintf("deserialize %s/%s", l.handle.Bucket, path), err)
	}
	l.logger.InfoContext(ctx, "model loaded",
		"bucket", l.handle.Bucket,
		"key", path,
		"model", artifact.String(),
		"bytes", len(data))
	return artifact, nil
}

// Save uploads the local artifact at localPath to path. When remove is set
// the local file is deleted only after the upload has succeeded; a failed
// upload leaves it untouched. Saves to the same path are serialized.
func (l *Locator) Save(ctx context.Context, localPath, path string, remove bool) error {
	lock := l.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(localPath)
	if err != nil {
		return errs.RemoteAccess(fmt.Sprintf("read local artifact %s", localPath), err)
	}
	if err := l.gateway.Upload(ctx, data, l.handle.Bucket, path); err != nil {
		return errs.RemoteAccess(fmt.Sprintf("upload %s to %s/%s", localPath, l.handle.Bucket, path), err)
	}
	l.logger.InfoContext(ctx, "model uploaded",
		"local_path", localPath,
		"bucket", l.handle.Bucket,
		"key", path,
		"bytes", len(data))

	if remove {
		if err := os.Remove(localPath); err != nil {
			return errs.RemoteAccess(fmt.Sprintf("remove local artifact %s after upload", localPath), err)
		}
	}
	return nil
}

// Model returns the artifact at the configured handle, downloading it on
// first access only.
func (l *Locator) Model(ctx context.Context) (*model.Artifact, error) {
	l.cache.mu.Lock()
	defer l.cache.mu.Unlock()
	if l.cache.loaded {
		return l.cache.artifact, nil
	}
	artifact, err := l.Load(ctx, l.handle.Key)
	if err != nil {
		return nil, err
	}
	l.cache.artifact = artifact
	l.cache.loaded = true
	return artifact, nil
}

// Predict runs the cached production model on x.
func (l *Locator) Predict(ctx context.Context, x *dataset.Dataset) ([]int, error) {
	artifact, err := l.Model(ctx)
	if err != nil {
		return nil, err
	}
	return artifact.Predict(x)
}

func (l *Locator) lockFor(path string) *sync.Mutex {
	lock, _ := l.saveLocks.LoadOrStore(path, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
