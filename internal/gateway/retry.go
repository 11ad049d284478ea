package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
)

// withRetry runs op, retrying with exponential backoff up to maxTries
// attempts when op fails with a transient (gwerrors.Unavailable or
// gwerrors.Throttled) error. Non-transient errors and
// the final attempt's error are returned as-is.
func withRetry[T any](ctx context.Context, maxTries int, op func() (T, error)) (T, error) {
	if maxTries < 1 {
		maxTries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && gwerrors.IsTransient(err) {
			return v, err
		}
		if err != nil {
			// Permanent for this op: stop retrying immediately.
			return v, backoff.Permanent(err)
		}
		return v, nil
	},
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithBackOff(exponentialBackOff()),
	)
}

func exponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	return b
}
