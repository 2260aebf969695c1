package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/browser"
	"github.com/JakeFAU/trendscraper/internal/browser/browsertest"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

func TestOpenAcquiresInOrderAndCloseReleasesAll(t *testing.T) {
	t.Parallel()

	driver := &browsertest.Driver{}
	sess, err := browser.Open(context.Background(), driver, browser.Options{Headless: true, Logger: zap.NewNop()})
	require.NoError(t, err)
	require.NotNil(t, sess.Page())

	counts := driver.Counts()
	require.Equal(t, 1, counts.Acquired[scrape.StagePage])
	require.False(t, counts.Balanced())

	sess.Close()
	sess.Close()

	counts = driver.Counts()
	require.True(t, counts.Balanced())
	require.Equal(t, 1, counts.Released[scrape.StageHandle])
}

func TestOpenReleasesPartialAcquisitions(t *testing.T) {
	t.Parallel()

	stages := []string{scrape.StageHandle, scrape.StageBrowser, scrape.StageContext, scrape.StagePage}
	for i, stage := range stages {
		t.Run(stage, func(t *testing.T) {
			driver := &browsertest.Driver{FailStage: stage, FailErr: browsertest.ErrScripted}
			sess, err := browser.Open(context.Background(), driver, browser.Options{})
			require.Nil(t, sess)

			var launchErr *scrape.LaunchError
			require.ErrorAs(t, err, &launchErr)
			require.Equal(t, stage, launchErr.Stage)
			require.ErrorIs(t, err, browsertest.ErrScripted)

			counts := driver.Counts()
			require.True(t, counts.Balanced())
			for _, earlier := range stages[:i] {
				require.Equal(t, 1, counts.Released[earlier], "stage %s", earlier)
			}
			require.Zero(t, counts.Acquired[stage])
		})
	}
}

func TestCloseSwallowsReleaseErrors(t *testing.T) {
	t.Parallel()

	driver := &browsertest.Driver{CloseErr: errors.New("already gone")}
	sess, err := browser.Open(context.Background(), driver, browser.Options{})
	require.NoError(t, err)

	require.NotPanics(t, sess.Close)
	require.True(t, driver.Counts().Balanced())
}

func TestOpenWithoutDriver(t *testing.T) {
	t.Parallel()

	_, err := browser.Open(context.Background(), nil, browser.Options{})
	var launchErr *scrape.LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Equal(t, scrape.StageHandle, launchErr.Stage)
}

func TestNilSessionCloseIsSafe(t *testing.T) {
	t.Parallel()

	var sess *browser.Session
	require.NotPanics(t, sess.Close)
}
