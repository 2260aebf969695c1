package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trendscraper/internal/scrape"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 1, cfg.Server.Workers)
	require.Equal(t, 8, cfg.Server.QueueDepth)
	require.Equal(t, EngineChromedp, cfg.Browser.Engine)
	require.True(t, cfg.Browser.Headless)
	require.Equal(t, 30*time.Second, cfg.Browser.NavTimeout)
	require.Equal(t, []string{"youtube", "instagram", "facebook"}, cfg.Scrape.Platforms)
	require.Equal(t, 20, cfg.Scrape.DefaultLimit)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.False(t, cfg.Mail().Enabled())

	policy := cfg.RetryPolicy()
	require.Equal(t, 3, policy.MaxAttempts)
	require.Equal(t, 2*time.Second, policy.MinDelay)
	require.Equal(t, 10*time.Second, policy.MaxDelay)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  run_timeout: 2m
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: debug
browser:
  engine: rod
  headless: false
  nav_timeout: 45s
scrape:
  platforms: [youtube, instagram]
  default_limit: 5
  max_parallel: 2
retry:
  max_attempts: 4
  min_delay: 1s
  max_delay: 4s
rate_limit:
  rps: 2
  burst: 3
  platform_rps:
    instagram: 0.25
storage:
  backend: local
  local_dir: /tmp/snapshots
  prefix: trends
notify:
  smtp_host: smtp.example.com
  smtp_port: 587
  from: bot@example.com
  to: [team@example.com]
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2*time.Minute, cfg.Server.RunTimeout)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, EngineRod, cfg.Browser.Engine)
	require.False(t, cfg.Browser.Headless)
	require.Equal(t, []scrape.Platform{scrape.PlatformYouTube, scrape.PlatformInstagram}, cfg.Platforms())
	require.Equal(t, 4, cfg.RetryPolicy().MaxAttempts)

	rl := cfg.RateLimiter()
	require.InDelta(t, 2.0, rl.DefaultRPS, 1e-9)
	require.Equal(t, 3, rl.DefaultBurst)
	require.InDelta(t, 0.25, rl.PlatformRPS["instagram"], 1e-9)

	mail := cfg.Mail()
	require.True(t, mail.Enabled())
	require.Equal(t, 587, mail.Port)
	require.Equal(t, []string{"team@example.com"}, mail.To)

	require.Equal(t, 500*time.Millisecond, cfg.ProgressHub().MaxBatchWait)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRENDSCRAPER_SERVER_PORT", "9999")
	t.Setenv("TRENDSCRAPER_SCRAPE_PLATFORMS", "youtube, facebook")
	t.Setenv("TRENDSCRAPER_RETRY_MIN_DELAY", "500ms")
	t.Setenv("TRENDSCRAPER_NOTIFY_SMTP_HOST", "smtp.local")
	t.Setenv("TRENDSCRAPER_NOTIFY_TO", "a@example.com,b@example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, []string{"youtube", "facebook"}, cfg.Scrape.Platforms)
	require.Equal(t, 500*time.Millisecond, cfg.Retry.MinDelay)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Notify.To)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080, Workers: 1, QueueDepth: 4},
		Browser: BrowserConfig{Engine: EngineChromedp, NavTimeout: time.Second, QueryTimeout: time.Second},
		Scrape:  ScrapeConfig{Platforms: []string{"youtube"}, DefaultLimit: 10, MaxLimit: 100},
		Retry:   RetryConfig{MaxAttempts: 3, MinDelay: time.Second, MaxDelay: 2 * time.Second},
		Storage: StorageConfig{Backend: BackendMemory},
	}
	require.NoError(t, base.Validate())
	for _, engine := range []string{EngineRod, EnginePlaywright} {
		withEngine := base
		withEngine.Browser.Engine = engine
		require.NoError(t, withEngine.Validate(), engine)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no workers", func(c *Config) { c.Server.Workers = 0 }, "server.workers"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown engine", func(c *Config) { c.Browser.Engine = "selenium" }, "browser.engine"},
		{"zero nav timeout", func(c *Config) { c.Browser.NavTimeout = 0 }, "browser.nav_timeout"},
		{"no platforms", func(c *Config) { c.Scrape.Platforms = nil }, "scrape.platforms"},
		{"unknown platform", func(c *Config) { c.Scrape.Platforms = []string{"myspace"} }, "scrape.platforms"},
		{"limit above max", func(c *Config) { c.Scrape.DefaultLimit = 500 }, "scrape.default_limit"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"inverted delays", func(c *Config) { c.Retry.MaxDelay = 0 }, "retry.max_delay"},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }, "rate_limit.rps"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.gcs_bucket"},
		{"local without dir", func(c *Config) { c.Storage.Backend = BackendLocal }, "storage.local_dir"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"smtp without recipients", func(c *Config) { c.Notify.SMTPHost = "smtp" }, "notify.to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Scrape.Platforms = append([]string(nil), base.Scrape.Platforms...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "expected %q in %v", tt.want, err)
		})
	}
}
