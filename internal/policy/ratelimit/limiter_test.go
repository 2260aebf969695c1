package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	// 10 RPS with burst 1: the second call waits about 100ms.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "youtube"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "youtube"))
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentPlatforms(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "youtube"))

	// Another platform has its own bucket and should not wait.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "instagram"))
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("expected no wait for a different platform, waited %v", time.Since(start))
	}
}

func TestLimiter_PlatformOverride(t *testing.T) {
	l := New(Config{
		DefaultRPS:   0.1,
		DefaultBurst: 1,
		PlatformRPS:  map[string]float64{"Facebook": 0},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "facebook"))
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(Config{
		DefaultRPS:   0.1,
		DefaultBurst: 1,
	})
	require.NoError(t, l.Wait(context.Background(), "youtube"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "youtube")
	require.Error(t, err)
}

func TestLimiter_NilNeverBlocks(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Wait(context.Background(), "youtube"))
}
