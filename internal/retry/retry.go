// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/logger"
)

// Policy retries operations that failed with database.ErrStorageUnavailable.
// Every other error is returned on the first attempt.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Log             *logger.Logger
}

func NewPolicy(maxTries int, log *logger.Logger) Policy {
	if maxTries < 1 {
		maxTries = 1
	}
	return Policy{
		MaxTries:        uint(maxTries),
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Log:             log,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done.
func Do[T any](ctx context.Context, p Policy, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !errors.Is(err, database.ErrStorageUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			if p.Log != nil {
				p.Log.Warn("storage unavailable, retrying", "op", op, "error", err, "retry_in", next)
			}
		}),
	)
}

// Exec is Do for operations without a result.
func Exec(ctx context.Context, p Policy, op string, fn func() error) error {
	_, err := Do(ctx, p, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
