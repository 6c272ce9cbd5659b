package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes a bounded retry loop with (optionally exponential) backoff.
type Policy struct {
	MaxAttempts int           // total attempts, including the first one
	Delay       time.Duration // wait before the second attempt
	MaxDelay    time.Duration // cap on the wait, 0 = no cap
	Multiplier  float64       // growth per attempt, <= 1 = fixed delay
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay, Multiplier: 1}
}

// Exponential returns a policy doubling the delay up to maxDelay.
func Exponential(attempts int, delay, maxDelay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay, MaxDelay: maxDelay, Multiplier: 2}
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("MaxAttempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("Delay must be >= 0, got %v", p.Delay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("MaxDelay must be >= 0, got %v", p.MaxDelay)
	}
	return nil
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	wait := p.Delay
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			wait = time.Duration(float64(wait) * p.Multiplier)
			if p.MaxDelay > 0 && wait > p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		return p.MaxDelay
	}
	return wait
}

// Attempt is called once per try. A nil error stops the loop.
type Attempt func(ctx context.Context, attempt int) error

// Notify is called after a failed attempt that will be retried.
type Notify func(attempt int, wait time.Duration, err error)

// Do runs fn until it succeeds, returns a non-retryable error, or the policy runs out.
//
// retryable decides which errors are retried; nil means every error is.
// When attempts run out the last error is returned wrapped with ErrExhausted.
func (p Policy) Do(ctx context.Context, fn Attempt, retryable func(error) bool, notify Notify) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Backoff(attempt)
		if notify != nil {
			notify(attempt, wait, lastErr)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}
