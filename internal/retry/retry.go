// Package retry re-runs transient operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts includes the first attempt. Values below 1 mean one attempt.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration `yaml:"max_delay"`
	// Factor multiplies the delay after each failure.
	Factor float64 `yaml:"factor"`
	// Jitter scales each wait by a random factor in [0.5, 1.5).
	Jitter bool `yaml:"jitter"`
}

// DefaultConfig returns the settings used for object store transfers.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Factor <= 0 {
		c.Factor = 2.0
	}
	return c
}

// Result describes how an operation finished.
type Result struct {
	Attempts int
	// Err is the last error, nil on success.
	Err      error
	Duration time.Duration
}

// Do runs op until it succeeds, returns a permanent error, runs out of
// attempts, or ctx is done.
func Do(ctx context.Context, config Config, op func(ctx context.Context) error) Result {
	config = config.normalized()
	start := time.Now()
	delay := config.InitialDelay
	var res Result

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		err := op(ctx)
		res.Err = err
		if err == nil || IsPermanent(err) || attempt == config.MaxAttempts {
			break
		}

		wait := delay
		if config.Jitter {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64())) // #nosec G404 -- jitter only
		}
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * config.Factor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	res.Duration = time.Since(start)
	return res
}

// DoWithValue is Do for operations that produce a value.
func DoWithValue[T any](ctx context.Context, config Config, op func(ctx context.Context) (T, error)) (T, Result) {
	var value T
	res := Do(ctx, config, func(ctx context.Context) error {
		var err error
		value, err = op(ctx)
		return err
	})
	return value, res
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
