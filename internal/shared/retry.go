package shared

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// delayHinter lets an error override the computed backoff delay, e.g. a
// rate-limit response carrying Retry-After.
type delayHinter interface {
	RetryDelayHint() time.Duration
}

// RetryPolicy bounds and paces retries of remote calls. One policy value is
// built from configuration and injected everywhere retries happen, instead
// of each call site carrying its own loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      bool
}

// DefaultRetryPolicy matches the forge defaults: three attempts with a half
// second linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Jitter: true}
}

// Delay returns the pause before the next try after attempt failures
// (1-based): linear backoff of BaseDelay×attempt, plus up to BaseDelay/2 of
// jitter when enabled.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay * time.Duration(attempt)
	if p.Jitter {
		if half := int64(p.BaseDelay / 2); half > 0 {
			d += time.Duration(rand.Int64N(half))
		}
	}
	return d
}

// Do invokes fn until it succeeds, retryable rejects the error, the context
// is done, or MaxAttempts is exhausted. A nil retryable treats every error
// as retryable. The error from the final attempt is returned unwrapped so
// callers keep its type.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		var hinter delayHinter
		if errors.As(err, &hinter) {
			if hint := hinter.RetryDelayHint(); hint > 0 {
				delay = hint
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
