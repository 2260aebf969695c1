// Package pipeline runs one scrape end to end: it fans out to the platform
// scrapers, ranks the hashtags it saw, then persists, snapshots, publishes and
// mails the resulting RunReport.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/clock"
	"github.com/JakeFAU/trendscraper/internal/coordinator"
	"github.com/JakeFAU/trendscraper/internal/id"
	"github.com/JakeFAU/trendscraper/internal/metrics"
	"github.com/JakeFAU/trendscraper/internal/notify"
	"github.com/JakeFAU/trendscraper/internal/report"
	"github.com/JakeFAU/trendscraper/internal/scrape"
	"github.com/JakeFAU/trendscraper/internal/storage"
	"github.com/JakeFAU/trendscraper/internal/trends"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// RunStore persists run reports.
type RunStore interface {
	CreateRun(ctx context.Context, r report.RunReport) error
	UpdateRun(ctx context.Context, r report.RunReport) error
	ListRuns(ctx context.Context, niche string, n int) ([]report.RunReport, error)
}

// PostStore persists scraped posts.
type PostStore interface {
	SavePosts(ctx context.Context, runID uuid.UUID, posts []scrape.ScrapedPost) (int, error)
}

// BlobStore stores run snapshots.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher announces finished runs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notifier mails the run digest.
type Notifier interface {
	SendDigest(ctx context.Context, subject string, d notify.Digest) error
}

// Config holds the request defaults and the post-scrape settings.
type Config struct {
	// DefaultPlatforms are scraped when a request names none. Empty means
	// every registered scraper.
	DefaultPlatforms []scrape.Platform
	DefaultLimit     int
	MaxLimit         int
	// TopHashtags caps the ranked tags kept on the report.
	TopHashtags int
	// HistoryRuns is how many earlier runs of the niche feed tag velocity.
	HistoryRuns    int
	SnapshotPrefix string
	Topic          string
	// DigestPosts caps the posts listed in the email digest.
	DigestPosts int
}

// Deps are the collaborators of a Pipeline. Runs is required. The post,
// blob, publisher and notifier steps are skipped when nil.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Scrapers    []coordinator.Scraper
	Runs        RunStore
	Posts       PostStore
	Blobs       BlobStore
	Publisher   Publisher
	Notifier    Notifier
	Clock       clock.Clock
	IDs         id.Generator
	Logger      *zap.Logger
}

// Request is one scrape request.
type Request struct {
	Niche     string   `json:"niche"`
	Limit     *int     `json:"limit,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

// Pipeline executes runs.
type Pipeline struct {
	cfg      Config
	deps     Deps
	scrapers map[scrape.Platform]coordinator.Scraper
	logger   *zap.Logger
}

// New validates the dependencies and builds a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Runs == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if len(deps.Scrapers) == 0 {
		return nil, fmt.Errorf("at least one scraper is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.IDs == nil {
		deps.IDs = id.UUIDv7{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 200
	}
	if cfg.TopHashtags <= 0 {
		cfg.TopHashtags = 20
	}
	if cfg.DigestPosts <= 0 {
		cfg.DigestPosts = 10
	}

	scrapers := make(map[scrape.Platform]coordinator.Scraper, len(deps.Scrapers))
	for _, s := range deps.Scrapers {
		if s == nil {
			continue
		}
		if _, dup := scrapers[s.Platform()]; dup {
			return nil, fmt.Errorf("duplicate scraper for %s", s.Platform())
		}
		scrapers[s.Platform()] = s
	}
	for _, p := range cfg.DefaultPlatforms {
		if _, ok := scrapers[p]; !ok {
			return nil, fmt.Errorf("default platform %s has no scraper", p)
		}
	}
	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		scrapers: scrapers,
		logger:   deps.Logger.Named("pipeline"),
	}, nil
}

// Platforms lists the registered platforms in name order.
func (p *Pipeline) Platforms() []scrape.Platform {
	out := make([]scrape.Platform, 0, len(p.scrapers))
	for platform := range p.scrapers {
		out = append(out, platform)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run starts and executes a run synchronously.
func (p *Pipeline) Run(ctx context.Context, req Request) (report.RunReport, error) {
	rep, err := p.Start(ctx, req)
	if err != nil {
		return report.RunReport{}, err
	}
	return p.Execute(ctx, rep)
}

// Start validates req and records a new running report. The caller then
// hands the report to Execute, possibly on another goroutine.
func (p *Pipeline) Start(ctx context.Context, req Request) (report.RunReport, error) {
	niche, limit, platforms, err := p.normalize(req)
	if err != nil {
		return report.RunReport{}, err
	}
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return report.RunReport{}, fmt.Errorf("allocate run id: %w", err)
	}
	rep := report.New(runID, niche, limit, platforms, p.deps.Clock.Now())
	if err := p.deps.Runs.CreateRun(ctx, rep); err != nil {
		return report.RunReport{}, fmt.Errorf("create run: %w", err)
	}
	return rep, nil
}

// Abort finishes a started run that will never execute, marking it failed
// with cause recorded against each requested platform.
func (p *Pipeline) Abort(ctx context.Context, rep report.RunReport, cause error) (report.RunReport, error) {
	now := p.deps.Clock.Now()
	rep.Status = report.StatusFailed
	rep.FinishedAt = &now
	rep.Results = rep.Results[:0]
	for _, platform := range rep.Platforms {
		pr := report.PlatformReport{Platform: platform}
		if cause != nil {
			pr.Error = cause.Error()
		}
		rep.Results = append(rep.Results, pr)
	}
	if err := p.deps.Runs.UpdateRun(ctx, rep); err != nil {
		return rep, fmt.Errorf("update run: %w", err)
	}
	p.logger.Warn("run aborted",
		zap.String("run_id", rep.RunID.String()),
		zap.Error(cause))
	return rep, nil
}

// Execute scrapes every platform of rep and completes it. Only a failure to
// record the final report is returned; the downstream steps log and count
// their failures so a broker or mail outage never loses the scrape.
func (p *Pipeline) Execute(ctx context.Context, rep report.RunReport) (report.RunReport, error) {
	logger := p.logger.With(zap.String("run_id", rep.RunID.String()), zap.String("niche", rep.Niche))

	scrapers := make([]coordinator.Scraper, 0, len(rep.Platforms))
	for _, platform := range rep.Platforms {
		scrapers = append(scrapers, p.scrapers[platform])
	}
	results := p.deps.Coordinator.CollectRun(ctx, rep.RunID, scrapers, rep.Niche, rep.Limit)

	now := p.deps.Clock.Now()
	rep.Complete(results, now)
	rep.TopHashtags = trends.Rank(trends.FromPosts(rep.Posts, now), p.cfg.TopHashtags)
	p.applyVelocity(ctx, &rep, logger)

	if p.deps.Posts != nil && len(rep.Posts) > 0 {
		inserted, err := p.deps.Posts.SavePosts(ctx, rep.RunID, rep.Posts)
		if err != nil {
			p.stepFailed(logger, "posts", err)
		} else {
			logger.Debug("posts saved", zap.Int("posts", len(rep.Posts)), zap.Int("new", inserted))
		}
	}

	if p.deps.Blobs != nil {
		uri, err := p.snapshot(ctx, rep)
		if err != nil {
			p.stepFailed(logger, "snapshot", err)
		} else {
			rep.SnapshotURI = uri
		}
	}

	if err := p.deps.Runs.UpdateRun(ctx, rep); err != nil {
		return rep, fmt.Errorf("update run %s: %w", rep.RunID, err)
	}

	if p.deps.Publisher != nil && p.cfg.Topic != "" {
		if msgID, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, rep); err != nil {
			p.stepFailed(logger, "publish", err)
		} else {
			logger.Debug("run published", zap.String("message_id", msgID))
		}
	}

	if p.deps.Notifier != nil {
		subject := fmt.Sprintf("Trend digest: %s (%s)", rep.Niche, rep.Status)
		if err := p.deps.Notifier.SendDigest(ctx, subject, p.digest(rep)); err != nil {
			p.stepFailed(logger, "notify", err)
		}
	}

	logger.Info("run finished",
		zap.String("status", string(rep.Status)),
		zap.Int("posts", len(rep.Posts)),
		zap.Int("hashtags", len(rep.TopHashtags)),
	)
	return rep, nil
}

func (p *Pipeline) normalize(req Request) (string, int, []scrape.Platform, error) {
	niche := strings.TrimSpace(req.Niche)
	if niche == "" {
		return "", 0, nil, fmt.Errorf("%w: niche is required", ErrInvalidRequest)
	}
	limit := p.cfg.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 0 {
		return "", 0, nil, fmt.Errorf("%w: limit must be >= 0", ErrInvalidRequest)
	}
	if limit > p.cfg.MaxLimit {
		return "", 0, nil, fmt.Errorf("%w: limit must be <= %d", ErrInvalidRequest, p.cfg.MaxLimit)
	}

	var platforms []scrape.Platform
	seen := make(map[scrape.Platform]struct{})
	for _, raw := range req.Platforms {
		platform, err := scrape.ParsePlatform(raw)
		if err != nil {
			return "", 0, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if _, ok := p.scrapers[platform]; !ok {
			return "", 0, nil, fmt.Errorf("%w: platform %s is not enabled", ErrInvalidRequest, platform)
		}
		if _, dup := seen[platform]; dup {
			continue
		}
		seen[platform] = struct{}{}
		platforms = append(platforms, platform)
	}
	if len(platforms) == 0 {
		platforms = p.cfg.DefaultPlatforms
	}
	if len(platforms) == 0 {
		platforms = p.Platforms()
	}
	return niche, limit, platforms, nil
}

// applyVelocity sets the growth per hour of each top tag across earlier
// finished runs of the same niche and this one.
func (p *Pipeline) applyVelocity(ctx context.Context, rep *report.RunReport, logger *zap.Logger) {
	if p.cfg.HistoryRuns <= 0 || len(rep.TopHashtags) == 0 {
		return
	}
	history, err := p.deps.Runs.ListRuns(ctx, rep.Niche, p.cfg.HistoryRuns)
	if err != nil {
		p.stepFailed(logger, "history", err)
		return
	}
	// ListRuns is newest first; velocity wants time order.
	points := make([]report.RunReport, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].RunID != rep.RunID {
			points = append(points, history[i])
		}
	}
	points = append(points, *rep)
	origin := points[0].StartedAt

	for i := range rep.TopHashtags {
		tag := rep.TopHashtags[i].Tag
		times := make([]float64, len(points))
		counts := make([]float64, len(points))
		for j, run := range points {
			times[j] = run.StartedAt.Sub(origin).Hours()
			counts[j] = float64(run.TagCount(tag))
		}
		rep.TopHashtags[i].Velocity = trends.Velocity(times, counts)
	}
}

func (p *Pipeline) snapshot(ctx context.Context, rep report.RunReport) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	path := storage.SnapshotPath(p.cfg.SnapshotPrefix, rep.Niche, rep.RunID.String())
	uri, err := p.deps.Blobs.PutObject(ctx, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}
	return uri, nil
}

func (p *Pipeline) digest(rep report.RunReport) notify.Digest {
	d := notify.Digest{
		RunID: rep.RunID.String(),
		Niche: rep.Niche,
	}
	if rep.FinishedAt != nil {
		d.FinishedAt = *rep.FinishedAt
	}
	for _, r := range rep.Results {
		d.Platforms = append(d.Platforms, notify.PlatformLine{Platform: string(r.Platform), Posts: r.Posts, Error: r.Error})
	}
	for _, s := range rep.TopHashtags {
		d.TopHashtags = append(d.TopHashtags, notify.TagLine{Tag: s.Tag, Count: s.Count, Score: s.Score})
	}
	for i, post := range rep.Posts {
		if i == p.cfg.DigestPosts {
			break
		}
		d.Posts = append(d.Posts, notify.PostLine{Platform: string(post.Platform), PostID: post.PostID, URL: post.URL})
	}
	return d
}

func (p *Pipeline) stepFailed(logger *zap.Logger, step string, err error) {
	metrics.ObserveStepFailure(step)
	logger.Warn("pipeline step failed", zap.String("step", step), zap.Error(err))
}
