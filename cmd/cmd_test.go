package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/app"
	"github.com/JakeFAU/trendscraper/internal/browser/browsertest"
	"github.com/JakeFAU/trendscraper/internal/config"
	"github.com/JakeFAU/trendscraper/internal/report"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

const testConfigYAML = `
logging:
  development: false
  level: error
scrape:
  platforms: [youtube]
retry:
  max_attempts: 1
  min_delay: 0s
  max_delay: 0s
rate_limit:
  rps: 0
progress:
  max_batch_wait: 10ms
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trendscraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))
	return path
}

// useFakeBrowser swaps the service factory for one driving a fake browser.
// Tests that call it cannot run in parallel.
func useFakeBrowser(t *testing.T, driver *browsertest.Driver) {
	t.Helper()
	orig := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, app.Options{
			Logger:     logger,
			Registerer: prometheus.NewRegistry(),
			Driver:     driver,
		})
	}
	t.Cleanup(func() { newApp = orig })
}

func TestScrapeCommandPrintsReport(t *testing.T) {
	useFakeBrowser(t, &browsertest.Driver{Elements: map[string][]browsertest.Element{
		"a#thumbnail": {browsertest.Anchor("/shorts/abcdef1")},
	}})

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"scrape", "--config", writeConfig(t), "--env-file", "", "--niche", "dance", "--limit", "5"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var rep report.RunReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	require.Equal(t, "dance", rep.Niche)
	require.Equal(t, 5, rep.Limit)
	require.Equal(t, report.StatusSucceeded, rep.Status)
	require.Len(t, rep.Posts, 1)
}

func TestScrapeCommandFailedRunReturnsError(t *testing.T) {
	useFakeBrowser(t, &browsertest.Driver{FailStage: scrape.StageBrowser})

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"scrape", "--config", writeConfig(t), "--env-file", "", "--niche", "dance"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "failed on every platform")
	require.Contains(t, out.String(), `"status": "failed"`)
}

func TestScrapeCommandRequiresNiche(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"scrape", "--config", writeConfig(t), "--env-file", ""})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "niche")
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"scrape", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "--env-file", "", "--niche", "x"})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "load config")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRENDSCRAPER_TEST_ONLY=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TRENDSCRAPER_TEST_ONLY") })

	require.NoError(t, loadEnvFile(path))
	require.Equal(t, "from-file", os.Getenv("TRENDSCRAPER_TEST_ONLY"))

	require.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))
	require.NoError(t, loadEnvFile(""))
}

func TestResolveRuntimeWithoutPreRun(t *testing.T) {
	t.Parallel()
	_, err := resolveRuntime(context.Background())
	require.Error(t, err)
}
