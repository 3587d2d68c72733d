package collector

import (
	"context"
	"log"
	"time"
)

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries up to 3 attempts, waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Base: time.Second, Factor: 2, MaxDelay: 30 * time.Second}
}

// Backoff returns the wait before the attempt following the given one (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Retry runs fn until it succeeds, returns an error retryable rejects, or the
// attempts are exhausted. The last error is returned as is.
func Retry(ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}
		backoff := p.Backoff(attempt)
		log.Printf("[WARN] attempt %d/%d failed: %v, retrying in %v", attempt, attempts, err, backoff)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
	}
	return err
}
