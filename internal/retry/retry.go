// Package retry wraps side-effecting operations with bounded exponential
// backoff. Only transient failures are retried; validation and
// configuration errors surface immediately.
package retry

import (
	"context"
	"fmt"
	"time"

	"valet/internal/services"
)

// Policy bounds a retry loop. MaxAttempts counts total invocations, so a
// policy of three attempts sleeps at most twice.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	sleeper func(context.Context, time.Duration) error
}

// NewPolicy builds a Policy from attempt and delay settings, clamping
// nonsensical values to safe minimums.
func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// WithSleeper overrides how retry delays are performed (useful for tests).
func (p Policy) WithSleeper(sleeper func(context.Context, time.Duration) error) Policy {
	p.sleeper = sleeper
	return p
}

// Delay returns the backoff before the given retry, doubling from BaseDelay
// and capped at MaxDelay. attempt is zero-based: Delay(0) precedes the
// second invocation.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do invokes op until it succeeds, fails permanently, or the attempt
// budget is exhausted. Only errors marked services.ErrTransient are
// retried. The last error is returned when the budget runs out.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !services.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr)
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if p.sleeper != nil {
		return p.sleeper(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
