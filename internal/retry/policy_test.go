package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func failingOp(k int, calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= k {
			return "", errors.New("transient")
		}
		return "ok", nil
	}
}

func TestDelaySequenceClampsAtMax(t *testing.T) {
	t.Parallel()

	p := Policy{MinDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
	want := []time.Duration{2, 4, 8, 10, 10, 10}
	for i, w := range want {
		require.Equal(t, w*time.Second, p.Delay(i), "attempt %d", i)
	}
	require.Equal(t, 10*time.Second, p.Delay(200))
}

func TestDelayNeverBelowMin(t *testing.T) {
	t.Parallel()

	p := Policy{MinDelay: 3 * time.Second, MaxDelay: time.Second}
	require.Equal(t, 3*time.Second, p.Delay(0))
	require.Equal(t, 3*time.Second, p.Delay(-4))
}

func TestGuardSucceedsAfterKFailures(t *testing.T) {
	t.Parallel()

	for k := 0; k < 4; k++ {
		sleeper := &recordingSleeper{}
		calls := 0
		p := Policy{MaxAttempts: k + 1, MinDelay: 2, MaxDelay: 10, Sleep: sleeper.Sleep}

		got, attempts, err := Guard(context.Background(), p, failingOp(k, &calls))
		require.NoError(t, err)
		require.Equal(t, "ok", got)
		require.Equal(t, k+1, calls)
		require.Equal(t, k+1, attempts)
		require.Len(t, sleeper.delays, k)
	}
}

func TestGuardExhaustsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	for _, maxAttempts := range []int{1, 2, 3} {
		sleeper := &recordingSleeper{}
		calls := 0
		p := Policy{MaxAttempts: maxAttempts, MinDelay: time.Second, MaxDelay: 4 * time.Second, Sleep: sleeper.Sleep}

		_, attempts, err := Guard(context.Background(), p, failingOp(5, &calls))
		require.ErrorIs(t, err, ErrExhausted)
		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		require.Equal(t, maxAttempts, exhausted.Attempts)
		require.EqualError(t, exhausted.Err, "transient")
		require.Equal(t, maxAttempts, calls)
		require.Equal(t, maxAttempts, attempts)
		require.Len(t, sleeper.delays, maxAttempts-1)
	}
}

func TestGuardWaitsExponentially(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	calls := 0
	p := Policy{MaxAttempts: 6, MinDelay: 2 * time.Second, MaxDelay: 10 * time.Second, Sleep: sleeper.Sleep}

	_, _, err := Guard(context.Background(), p, failingOp(10, &calls))
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, sleeper.delays)
}

func TestGuardStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	permanent := errors.New("bad niche")
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:       (&recordingSleeper{}).Sleep,
	}
	_, attempts, err := Guard(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	require.ErrorIs(t, err, permanent)
	require.NotErrorIs(t, err, ErrExhausted)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, attempts)
}

func TestGuardHonorsCancellationDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		MinDelay:    time.Hour,
		MaxDelay:    time.Hour,
		OnRetry:     func(int, error, time.Duration) { cancel() },
	}
	_, _, err := Guard(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestGuardOnRetryReceivesAttemptIndex(t *testing.T) {
	t.Parallel()

	var seen []int
	calls := 0
	p := Policy{
		MaxAttempts: 3,
		MinDelay:    time.Millisecond,
		MaxDelay:    time.Millisecond,
		OnRetry:     func(attempt int, _ error, _ time.Duration) { seen = append(seen, attempt) },
		Sleep:       (&recordingSleeper{}).Sleep,
	}
	_, _, err := Guard(context.Background(), p, failingOp(2, &calls))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, seen)
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, 2*time.Second, p.Delay(0))
	require.Equal(t, 10*time.Second, p.Delay(5))
}
