// Package coordinator runs platform scrapers concurrently, each behind its own
// retry policy, and gathers one outcome per platform. A failing platform never
// affects its siblings.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/metrics"
	"github.com/JakeFAU/trendscraper/internal/progress"
	"github.com/JakeFAU/trendscraper/internal/retry"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// ErrPanic marks an outcome whose scraper panicked.
var ErrPanic = errors.New("scraper panicked")

// Scraper is the contract every platform scraper satisfies.
type Scraper interface {
	Platform() scrape.Platform
	ScrapeRecent(ctx context.Context, niche string, limit int) ([]scrape.ScrapedPost, error)
}

// Outcome is the result of one platform within a run. Exactly one of Posts
// and Err is meaningful.
type Outcome struct {
	Platform scrape.Platform
	Posts    []scrape.ScrapedPost
	Err      error
	Attempts int
	Duration time.Duration
}

// OK reports whether the platform succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Results maps each requested platform to its outcome.
type Results map[scrape.Platform]Outcome

// Succeeded returns the platforms that produced posts, sorted.
func (r Results) Succeeded() []scrape.Platform {
	return r.filter(true)
}

// Failed returns the platforms that ended in an error, sorted.
func (r Results) Failed() []scrape.Platform {
	return r.filter(false)
}

// Posts concatenates the posts of successful platforms in platform order.
func (r Results) Posts() []scrape.ScrapedPost {
	var out []scrape.ScrapedPost
	for _, p := range r.Succeeded() {
		out = append(out, r[p].Posts...)
	}
	return out
}

func (r Results) filter(ok bool) []scrape.Platform {
	out := make([]scrape.Platform, 0, len(r))
	for p, o := range r {
		if o.OK() == ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Options configures a Coordinator.
type Options struct {
	// Policy is applied to each platform independently. Retryable defaults
	// to scrape.IsRetryable.
	Policy retry.Policy
	// MaxParallel bounds concurrent platform scrapes; 0 means unbounded.
	MaxParallel int
	Emitter     progress.Emitter
	Logger      *zap.Logger
}

// Coordinator fans a niche out to many platform scrapers.
type Coordinator struct {
	policy  retry.Policy
	slots   chan struct{}
	emitter progress.Emitter
	logger  *zap.Logger
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	policy := opts.Policy
	if policy.Retryable == nil {
		policy.Retryable = scrape.IsRetryable
	}
	var slots chan struct{}
	if opts.MaxParallel > 0 {
		slots = make(chan struct{}, opts.MaxParallel)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		policy:  policy,
		slots:   slots,
		emitter: opts.Emitter,
		logger:  logger.Named("coordinator"),
	}
}

// Collect runs every scraper under a fresh run ID.
func (c *Coordinator) Collect(ctx context.Context, scrapers []Scraper, niche string, limit int) Results {
	return c.CollectRun(ctx, uuid.New(), scrapers, niche, limit)
}

// CollectRun runs every scraper concurrently and waits for all of them. It
// never returns an error: each requested platform gets exactly one Outcome.
// When two scrapers report the same platform only the first runs.
func (c *Coordinator) CollectRun(ctx context.Context, runID uuid.UUID, scrapers []Scraper, niche string, limit int) Results {
	start := time.Now()
	logger := c.logger.With(zap.String("run_id", runID.String()), zap.String("niche", niche))
	c.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Note: niche})

	unique := make([]Scraper, 0, len(scrapers))
	seen := make(map[scrape.Platform]struct{}, len(scrapers))
	for _, s := range scrapers {
		if s == nil {
			continue
		}
		p := s.Platform()
		if _, dup := seen[p]; dup {
			logger.Warn("duplicate platform scraper ignored", zap.String("platform", string(p)))
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, s)
	}

	outcomes := make(chan Outcome, len(unique))
	var wg sync.WaitGroup
	for _, s := range unique {
		wg.Add(1)
		go func(s Scraper) {
			defer wg.Done()
			outcomes <- c.runOne(ctx, runID, s, niche, limit, logger)
		}(s)
	}
	wg.Wait()
	close(outcomes)

	results := make(Results, len(unique))
	for o := range outcomes {
		results[o.Platform] = o
	}
	logger.Info("run finished",
		zap.Int("succeeded", len(results.Succeeded())),
		zap.Int("failed", len(results.Failed())),
		zap.Duration("elapsed", time.Since(start)),
	)
	c.emit(progress.Event{RunID: runID, Stage: progress.StageRunDone, Posts: len(results.Posts()), Dur: time.Since(start)})
	return results
}

func (c *Coordinator) runOne(ctx context.Context, runID uuid.UUID, s Scraper, niche string, limit int, logger *zap.Logger) (out Outcome) {
	platform := s.Platform()
	label := string(platform)
	logger = logger.With(zap.String("platform", label))
	start := time.Now()
	out.Platform = platform
	attempts := 0

	defer func() {
		if r := recover(); r != nil {
			logger.Error("scraper panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out.Posts = nil
			out.Err = fmt.Errorf("%w: %v", ErrPanic, r)
			out.Attempts = attempts
		}
		out.Duration = time.Since(start)
		c.finish(runID, out, logger)
	}()

	if err := c.acquire(ctx); err != nil {
		out.Err = err
		return out
	}
	defer c.release()

	c.emit(progress.Event{RunID: runID, Stage: progress.StagePlatformStart, Platform: label})

	policy := c.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("platform scrape failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.ObserveRetry(label)
		c.emit(progress.Event{RunID: runID, Stage: progress.StagePlatformRetry, Platform: label, Attempt: attempt + 1, Note: err.Error()})
		if c.policy.OnRetry != nil {
			c.policy.OnRetry(attempt, err, delay)
		}
	}

	posts, n, err := retry.Guard(ctx, policy, func(ctx context.Context) ([]scrape.ScrapedPost, error) {
		attempts++
		return s.ScrapeRecent(ctx, niche, limit)
	})
	out.Attempts = n
	if err != nil {
		out.Err = err
		return out
	}
	if posts == nil {
		posts = []scrape.ScrapedPost{}
	}
	out.Posts = posts
	return out
}

func (c *Coordinator) finish(runID uuid.UUID, out Outcome, logger *zap.Logger) {
	label := string(out.Platform)
	if out.Err != nil {
		logger.Error("platform scrape failed", zap.Int("attempts", out.Attempts), zap.Error(out.Err))
		metrics.ObserveScrape(label, metrics.StatusError, 0, out.Duration)
		c.emit(progress.Event{RunID: runID, Stage: progress.StagePlatformError, Platform: label, Attempt: out.Attempts, Dur: out.Duration, Note: out.Err.Error()})
		return
	}
	logger.Info("platform scrape finished", zap.Int("posts", len(out.Posts)), zap.Int("attempts", out.Attempts))
	metrics.ObserveScrape(label, metrics.StatusSuccess, len(out.Posts), out.Duration)
	c.emit(progress.Event{RunID: runID, Stage: progress.StagePlatformDone, Platform: label, Attempt: out.Attempts, Posts: len(out.Posts), Dur: out.Duration})
}

func (c *Coordinator) acquire(ctx context.Context) error {
	if c.slots == nil {
		return nil
	}
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scrape slot wait canceled: %w", ctx.Err())
	}
}

func (c *Coordinator) release() {
	if c.slots == nil {
		return
	}
	<-c.slots
}

func (c *Coordinator) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	evt.TS = time.Now().UTC()
	c.emitter.Emit(evt)
}
