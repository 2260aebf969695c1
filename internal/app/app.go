// Package app builds the long-lived services of a trendscraper process from
// its configuration and tears them down again.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/api"
	"github.com/JakeFAU/trendscraper/internal/browser"
	chromedpdriver "github.com/JakeFAU/trendscraper/internal/browser/chromedp"
	playwrightdriver "github.com/JakeFAU/trendscraper/internal/browser/playwright"
	roddriver "github.com/JakeFAU/trendscraper/internal/browser/rod"
	"github.com/JakeFAU/trendscraper/internal/config"
	"github.com/JakeFAU/trendscraper/internal/coordinator"
	"github.com/JakeFAU/trendscraper/internal/notify"
	"github.com/JakeFAU/trendscraper/internal/pipeline"
	"github.com/JakeFAU/trendscraper/internal/platform"
	"github.com/JakeFAU/trendscraper/internal/policy/ratelimit"
	"github.com/JakeFAU/trendscraper/internal/progress"
	"github.com/JakeFAU/trendscraper/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/trendscraper/internal/publisher/pubsub"
	"github.com/JakeFAU/trendscraper/internal/storage/gcs"
	"github.com/JakeFAU/trendscraper/internal/storage/local"
	"github.com/JakeFAU/trendscraper/internal/storage/memory"
	"github.com/JakeFAU/trendscraper/internal/storage/postgres"
)

// RunStore is what both the pipeline and the API need from run storage.
type RunStore interface {
	pipeline.RunStore
	api.RunReader
	sinks.EventRepository
}

// Options carry process-level collaborators that are not configuration.
type Options struct {
	Logger *zap.Logger
	// Registerer receives the progress collectors; nil means the default
	// Prometheus registerer.
	Registerer prometheus.Registerer
	// Driver overrides the configured browser engine.
	Driver browser.Driver
}

// App holds every service a command needs.
type App struct {
	Pipeline *pipeline.Pipeline
	Runs     RunStore
	Hub      *progress.Hub

	logger  *zap.Logger
	pool    *pgxpool.Pool
	closers []func(context.Context) error
}

// New wires the services described by cfg. It fails fast when a configured
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	driver := opts.Driver
	if driver == nil {
		driver = newDriver(cfg.Browser)
	}
	logger.Info("initializing services",
		zap.String("engine", driver.Name()),
		zap.Strings("platforms", cfg.Scrape.Platforms),
		zap.String("storage", cfg.Storage.Backend),
	)

	var posts pipeline.PostStore
	if cfg.DB.DSN != "" {
		if err := a.openPostgres(ctx, cfg.DB); err != nil {
			return nil, err
		}
		runs, err := postgres.NewRunStore(a.pool)
		if err != nil {
			return nil, err
		}
		postStore, err := postgres.NewPostStore(a.pool, cfg.DB.PostsTable)
		if err != nil {
			return nil, err
		}
		a.Runs, posts = runs, postStore
	} else {
		a.Runs, posts = memory.NewRunStore(), memory.NewPostStore()
	}

	blobs, err := a.openBlobs(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	var publisher pipeline.Publisher
	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.Open(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		publisher = pub
	}

	var notifier pipeline.Notifier
	if mail := cfg.Mail(); mail.Enabled() {
		mailer, err := notify.NewMailer(mail, notify.WithLogger(logger.Named("notify")))
		if err != nil {
			return nil, fmt.Errorf("init mailer: %w", err)
		}
		notifier = mailer
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, err
	}
	hubCfg := cfg.ProgressHub()
	hubCfg.Logger = logger
	a.Hub = progress.NewHub(hubCfg,
		sinks.NewLogSink(logger),
		promSink,
		sinks.NewStoreSink(a.Runs, logger),
	)
	// Registered first so it runs last: the hub flushes into the stores.
	a.closers = append([]func(context.Context) error{a.Hub.Close}, a.closers...)

	scrapers, err := platform.NewAll(cfg.Scrape.Platforms, driver, platform.Options{
		Headless:     cfg.Browser.Headless,
		NavTimeout:   cfg.Browser.NavTimeout,
		QueryTimeout: cfg.Browser.QueryTimeout,
		Limiter:      ratelimit.New(cfg.RateLimiter()),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build scrapers: %w", err)
	}
	coordScrapers := make([]coordinator.Scraper, 0, len(scrapers))
	for _, s := range scrapers {
		coordScrapers = append(coordScrapers, s)
	}

	coord := coordinator.New(coordinator.Options{
		Policy:      cfg.RetryPolicy(),
		MaxParallel: cfg.Scrape.MaxParallel,
		Emitter:     a.Hub,
		Logger:      logger,
	})

	a.Pipeline, err = pipeline.New(pipeline.Config{
		DefaultPlatforms: cfg.Platforms(),
		DefaultLimit:     cfg.Scrape.DefaultLimit,
		MaxLimit:         cfg.Scrape.MaxLimit,
		TopHashtags:      cfg.Scrape.TopHashtags,
		HistoryRuns:      cfg.Scrape.HistoryRuns,
		SnapshotPrefix:   cfg.Storage.Prefix,
		Topic:            cfg.PubSub.TopicName,
		DigestPosts:      cfg.Scrape.DigestPosts,
	}, pipeline.Deps{
		Coordinator: coord,
		Scrapers:    coordScrapers,
		Runs:        a.Runs,
		Posts:       posts,
		Blobs:       blobs,
		Publisher:   publisher,
		Notifier:    notifier,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	logger.Info("services initialized")
	return a, nil
}

// Ready pings the database when one is configured.
func (a *App) Ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close flushes progress events and releases clients, most recent first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error during shutdown", zap.Error(err))
		return err
	}
	return nil
}

func (a *App) openPostgres(ctx context.Context, cfg config.DBConfig) error {
	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return err
	}
	a.pool = pool
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) openBlobs(ctx context.Context, cfg config.StorageConfig) (pipeline.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return memory.NewBlobStore(), nil
	}
}

func newDriver(cfg config.BrowserConfig) browser.Driver {
	switch cfg.Engine {
	case config.EngineRod:
		return roddriver.New(roddriver.Config{
			BrowserBin: cfg.ExecPath,
			UserAgent:  cfg.UserAgent,
			NoSandbox:  cfg.NoSandbox,
		})
	case config.EnginePlaywright:
		return playwrightdriver.New(playwrightdriver.Config{
			ExecPath:  cfg.ExecPath,
			UserAgent: cfg.UserAgent,
			NoSandbox: cfg.NoSandbox,
		})
	default:
		return chromedpdriver.New(chromedpdriver.Config{
			ExecPath:  cfg.ExecPath,
			UserAgent: cfg.UserAgent,
			NoSandbox: cfg.NoSandbox,
		})
	}
}
