// Package retry guards fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is matched by errors.Is for every ExhaustedError.
var ErrExhausted = errors.New("retry exhausted")

// ExhaustedError wraps the last failure once all attempts are spent.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrExhausted) match without losing the wrapped cause.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Policy configures Guard. The zero value runs the operation once.
type Policy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether a failure may be retried; nil retries everything.
	Retryable func(error) bool
	// OnRetry runs before each wait with the zero-based index of the failed attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy mirrors the original scraper defaults: 3 attempts, 2s..10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MinDelay:    2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Delay returns the wait after the failed attempt with the given zero-based index:
// min(MaxDelay, MinDelay*2^attempt), never below MinDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.MinDelay
	for i := 0; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		if delay > time.Duration(1<<62)/2 {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < p.MinDelay {
		delay = p.MinDelay
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) shouldRetry(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Guard runs op until it succeeds, fails with a non-retryable error, the context
// ends, or MaxAttempts is reached. The attempt count is returned alongside the
// result so callers can report it.
func Guard[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, int, error) {
	var (
		zero    T
		lastErr error
	)
	limit := p.maxAttempts()
	for attempt := 0; attempt < limit; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err
		if !p.shouldRetry(err) {
			return zero, attempt + 1, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, attempt + 1, errors.Join(err, ctxErr)
		}
		if attempt == limit-1 {
			break
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return zero, attempt + 1, errors.Join(err, sleepErr)
		}
	}
	return zero, limit, &ExhaustedError{Attempts: limit, Err: lastErr}
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return timerSleep(ctx, d)
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
