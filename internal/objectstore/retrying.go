package objectstore

import (
	"context"
	"errors"

	"github.com/haasonsaas/modelgate/internal/retry"
)

// Retrying retries transient gateway failures. A missing object is final
// and is returned on the first attempt.
type Retrying struct {
	next   Gateway
	config retry.Config
}

// NewRetrying wraps next.
func NewRetrying(next Gateway, config retry.Config) *Retrying {
	return &Retrying{next: next, config: config}
}

// Exists retries the wrapped check until it answers or the budget runs out.
func (r *Retrying) Exists(ctx context.Context, bucket, key string) (bool, error) {
	ok, res := retry.DoWithValue(ctx, r.config, func(ctx context.Context) (bool, error) {
		return r.next.Exists(ctx, bucket, key)
	})
	return ok, unwrapPermanent(res.Err)
}

// Download retries transient failures; ErrNotFound returns immediately.
func (r *Retrying) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	data, res := retry.DoWithValue(ctx, r.config, func(ctx context.Context) ([]byte, error) {
		data, err := r.next.Download(ctx, bucket, key)
		if errors.Is(err, ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return data, err
	})
	if res.Err != nil {
		return nil, unwrapPermanent(res.Err)
	}
	return data, nil
}

// Upload retries the whole upload with the same payload.
func (r *Retrying) Upload(ctx context.Context, data []byte, bucket, key string) error {
	res := retry.Do(ctx, r.config, func(ctx context.Context) error {
		return r.next.Upload(ctx, data, bucket, key)
	})
	return unwrapPermanent(res.Err)
}

// Close closes the wrapped gateway.
func (r *Retrying) Close() error {
	return r.next.Close()
}

func unwrapPermanent(err error) error {
	var p *retry.PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}
