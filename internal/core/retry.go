package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls what happens when a group's transaction cannot be
// committed. The whole group is always retried from the start.
//
// MaxAttempts <= 0 retries without bound, which can block forever against a
// store that never accepts the commit. Set a limit in production.
type RetryPolicy struct {
	MaxAttempts int

	// NewBackOff builds the delay schedule for one group. Nil retries
	// immediately.
	NewBackOff func() backoff.BackOff
}

// ExponentialRetry returns a policy with exponential delays between
// initial and max.
func ExponentialRetry(maxAttempts int, initial, max time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			return b
		},
	}
}

// exhausted reports whether another attempt is not allowed.
func (p RetryPolicy) exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.NewBackOff == nil {
		return &backoff.ZeroBackOff{}
	}
	return p.NewBackOff()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
