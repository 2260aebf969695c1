package chromedp

import (
	"context"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/require"
)

func TestDriverName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "chromedp", New(Config{}).Name())
}

func TestStartHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := New(Config{}).Start(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, h)
}

func TestAllocatorOptions(t *testing.T) {
	t.Parallel()

	base := len((&handle{}).allocatorOptions(true))
	withExtras := len((&handle{cfg: Config{
		ExecPath:  "/usr/bin/chromium",
		UserAgent: "trendscraper-test",
		NoSandbox: true,
	}}).allocatorOptions(true))
	require.Equal(t, base+3, withExtras)
	require.Equal(t, base, len((&handle{}).allocatorOptions(false)))
}

func TestElementAttribute(t *testing.T) {
	t.Parallel()

	el := element{node: &cdp.Node{Attributes: []string{"href", "/shorts/abc123", "title", "clip"}}}

	href, ok, err := el.Attribute(context.Background(), "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/shorts/abc123", href)

	_, ok, err = el.Attribute(context.Background(), "aria-label")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContextRejectsSecondPage(t *testing.T) {
	t.Parallel()

	c := &chromeContext{opened: true, cancel: func() {}}
	_, err := c.NewPage(context.Background())
	require.ErrorIs(t, err, errPageTaken)
	require.NoError(t, c.Close())
}
