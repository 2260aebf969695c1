// Package config loads and validates trendscraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/trendscraper/internal/notify"
	"github.com/JakeFAU/trendscraper/internal/policy/ratelimit"
	"github.com/JakeFAU/trendscraper/internal/progress"
	"github.com/JakeFAU/trendscraper/internal/retry"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// EnvPrefix prefixes every environment override, e.g. TRENDSCRAPER_SERVER_PORT.
const EnvPrefix = "TRENDSCRAPER"

// Browser engines.
const (
	EngineChromedp   = "chromedp"
	EngineRod        = "rod"
	EnginePlaywright = "playwright"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Workers         int           `mapstructure:"workers"`
	QueueDepth      int           `mapstructure:"queue_depth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig selects the zap preset and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig selects and tunes the browser engine.
type BrowserConfig struct {
	Engine       string        `mapstructure:"engine"`
	Headless     bool          `mapstructure:"headless"`
	ExecPath     string        `mapstructure:"exec_path"`
	UserAgent    string        `mapstructure:"user_agent"`
	NoSandbox    bool          `mapstructure:"no_sandbox"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// ScrapeConfig holds run defaults.
type ScrapeConfig struct {
	Platforms    []string `mapstructure:"platforms"`
	DefaultLimit int      `mapstructure:"default_limit"`
	MaxLimit     int      `mapstructure:"max_limit"`
	MaxParallel  int      `mapstructure:"max_parallel"`
	TopHashtags  int      `mapstructure:"top_hashtags"`
	HistoryRuns  int      `mapstructure:"history_runs"`
	DigestPosts  int      `mapstructure:"digest_posts"`
}

// RetryConfig configures the per-platform retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RateLimitConfig sets the per-platform navigation budget.
type RateLimitConfig struct {
	RPS         float64            `mapstructure:"rps"`
	Burst       int                `mapstructure:"burst"`
	PlatformRPS map[string]float64 `mapstructure:"platform_rps"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// StorageConfig chooses where snapshots go.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres. An empty DSN keeps runs and posts in
// memory.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PostsTable      string        `mapstructure:"posts_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// PubSubConfig holds the run-complete topic. Publishing is off without a
// project.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NotifyConfig holds SMTP settings for the digest email.
type NotifyConfig struct {
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
}

// Load builds a Config from an optional file plus the environment. Without a
// path it looks for trendscraper.yaml in ., /etc/trendscraper and
// $HOME/.trendscraper, and carries on when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("trendscraper")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/trendscraper/")
		v.AddConfigPath("$HOME/.trendscraper")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Scrape.Platforms = splitList(cfg.Scrape.Platforms)
	cfg.Notify.To = splitList(cfg.Notify.To)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.run_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.queue_depth", 8)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.nav_timeout", "30s")
	v.SetDefault("browser.query_timeout", "10s")
	v.SetDefault("scrape.platforms", []string{"youtube", "instagram", "facebook"})
	v.SetDefault("scrape.default_limit", 20)
	v.SetDefault("scrape.max_limit", 200)
	v.SetDefault("scrape.max_parallel", 3)
	v.SetDefault("scrape.top_hashtags", 20)
	v.SetDefault("scrape.history_runs", 10)
	v.SetDefault("scrape.digest_posts", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.min_delay", "2s")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("rate_limit.rps", 0.5)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 32)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "5s")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.local_dir", "data/snapshots")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.posts_table", "posts")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "trendscraper-runs")
	v.SetDefault("notify.smtp_host", "")
	v.SetDefault("notify.smtp_port", 25)
	v.SetDefault("notify.from", "")
	v.SetDefault("notify.to", []string{})
	v.SetDefault("notify.username", "")
	v.SetDefault("notify.password", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers <= 0 || c.Server.QueueDepth <= 0 {
		return fmt.Errorf("server.workers and server.queue_depth must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Browser.Engine {
	case EngineChromedp, EngineRod, EnginePlaywright:
	default:
		return fmt.Errorf("browser.engine must be %q, %q or %q, got %q",
			EngineChromedp, EngineRod, EnginePlaywright, c.Browser.Engine)
	}
	if c.Browser.NavTimeout <= 0 || c.Browser.QueryTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout and browser.query_timeout must be > 0")
	}
	if len(c.Scrape.Platforms) == 0 {
		return fmt.Errorf("scrape.platforms must name at least one platform")
	}
	for _, p := range c.Scrape.Platforms {
		if _, err := scrape.ParsePlatform(p); err != nil {
			return fmt.Errorf("scrape.platforms: %w", err)
		}
	}
	if c.Scrape.DefaultLimit < 0 || c.Scrape.MaxLimit <= 0 || c.Scrape.DefaultLimit > c.Scrape.MaxLimit {
		return fmt.Errorf("scrape.default_limit must be within 0..scrape.max_limit")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.MinDelay < 0 || c.Retry.MaxDelay < c.Retry.MinDelay {
		return fmt.Errorf("retry.max_delay must be >= retry.min_delay >= 0")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local or gcs, got %q", c.Storage.Backend)
	}
	if c.Notify.SMTPHost != "" && len(c.Notify.To) == 0 {
		return fmt.Errorf("notify.to is required when notify.smtp_host is set")
	}
	return nil
}

// RetryPolicy converts the retry section.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		MinDelay:    c.Retry.MinDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}

// RateLimiter converts the rate_limit section.
func (c Config) RateLimiter() ratelimit.Config {
	return ratelimit.Config{
		DefaultRPS:   c.RateLimit.RPS,
		DefaultBurst: c.RateLimit.Burst,
		PlatformRPS:  c.RateLimit.PlatformRPS,
	}
}

// ProgressHub converts the progress section.
func (c Config) ProgressHub() progress.Config {
	return progress.Config{
		BufferSize:     c.Progress.BufferSize,
		MaxBatchEvents: c.Progress.MaxBatchEvents,
		MaxBatchWait:   c.Progress.MaxBatchWait,
		SinkTimeout:    c.Progress.SinkTimeout,
	}
}

// Mail converts the notify section.
func (c Config) Mail() notify.Config {
	return notify.Config{
		Host:     c.Notify.SMTPHost,
		Port:     c.Notify.SMTPPort,
		From:     c.Notify.From,
		To:       c.Notify.To,
		Username: c.Notify.Username,
		Password: c.Notify.Password,
	}
}

// Platforms returns the configured platforms, parsed.
func (c Config) Platforms() []scrape.Platform {
	out := make([]scrape.Platform, 0, len(c.Scrape.Platforms))
	for _, raw := range c.Scrape.Platforms {
		if p, err := scrape.ParsePlatform(raw); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
