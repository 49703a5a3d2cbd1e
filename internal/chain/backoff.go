package chain

import (
	"context"
	"fmt"
	"time"
)

// retryPolicy bounds retries for gateway calls: exponential backoff starting
// at Base, doubling up to Max, for at most Attempts tries.
type retryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// defaultRetry is used for all gateway reads and submissions unless a caller
// overrides it.
var defaultRetry = retryPolicy{
	Attempts: 4,
	Base:     500 * time.Millisecond,
	Max:      8 * time.Second,
}

// withRetry runs fn under the policy, sleeping between failed attempts. It
// returns the last error once attempts are exhausted; the caller is expected
// to surface that as a monitoring_error rather than propagate it upward.
func withRetry(ctx context.Context, p retryPolicy, fn func(ctx context.Context) error) error {
	delay := p.Base
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > p.Max {
			delay = p.Max
		}
	}

	return fmt.Errorf("chain: %d attempts exhausted: %w", p.Attempts, lastErr)
}
