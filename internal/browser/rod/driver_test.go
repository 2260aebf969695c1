package rod

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "rod", New(Config{}).Name())
}

func TestStartHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := New(Config{}).Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, h)
}

func TestStartPreparesLauncher(t *testing.T) {
	t.Parallel()

	h, err := New(Config{BrowserBin: "/usr/bin/chromium", NoSandbox: true}).Start(context.Background())
	require.NoError(t, err)
	rh, ok := h.(*handle)
	require.True(t, ok)
	require.NotNil(t, rh.launcher)
	require.Equal(t, "/usr/bin/chromium", rh.cfg.BrowserBin)
}
