package resilient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"govsync/internal/bootstrap/logging"
	"govsync/internal/errs"
)

// Policy bounds how long a collaborator call may be retried.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxTries        uint
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// do retries fn while it fails with an error marked retryable.
// The last error is returned unchanged so callers keep the retryable marker.
func do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "infrastructure.resilient"), slog.String("op", op))

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Warn(logCtx, "collaborator call failed, retrying",
				slog.Duration("next", next),
				slog.Any("err", errs.Loggable(err)),
			)
		}),
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}

	result, err := backoff.Retry[T](ctx, func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !errs.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return result, err
	}
	return result, nil
}
