// Package platform implements the per-platform scrapers. The session
// lifecycle, rate limiting and warning handling live once in Scraper; each
// platform only supplies a Variant with its listing URL and DOM mapping.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/browser"
	"github.com/JakeFAU/trendscraper/internal/metrics"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

const (
	defaultNavTimeout   = 30 * time.Second
	defaultQueryTimeout = 10 * time.Second
)

// Variant is the platform-specific part of a scraper.
type Variant interface {
	Platform() scrape.Platform
	// ListingURL returns the search or listing view for niche. Niches the
	// platform cannot express return an error wrapping scrape.ErrInvalidNiche.
	ListingURL(niche string) (string, error)
	// ExtractCandidates reads up to limit entries from the loaded listing in
	// page order. Entries that cannot be read are returned as warnings.
	ExtractCandidates(ctx context.Context, page browser.Page, limit int, timeout time.Duration) ([]scrape.RawCandidate, []scrape.ExtractionWarning, error)
	// BuildPost maps one candidate to a post tagged with Platform().
	BuildPost(candidate scrape.RawCandidate) (scrape.ScrapedPost, error)
}

// RateLimiter gates session starts per platform.
type RateLimiter interface {
	Wait(ctx context.Context, platform string) error
}

// Options configures a Scraper.
type Options struct {
	Headless     bool
	NavTimeout   time.Duration
	QueryTimeout time.Duration
	Limiter      RateLimiter
	Logger       *zap.Logger
}

// Scraper runs one Variant inside a scoped browser session.
type Scraper struct {
	variant Variant
	driver  browser.Driver
	opts    Options
	logger  *zap.Logger
}

// NewScraper wires a variant to a browser driver.
func NewScraper(variant Variant, driver browser.Driver, opts Options) (*Scraper, error) {
	if variant == nil {
		return nil, errors.New("variant is required")
	}
	if driver == nil {
		return nil, errors.New("browser driver is required")
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		variant: variant,
		driver:  driver,
		opts:    opts,
		logger:  logger.Named("scraper").With(zap.String("platform", string(variant.Platform()))),
	}, nil
}

// Platform returns the tag carried by every post this scraper produces.
func (s *Scraper) Platform() scrape.Platform {
	return s.variant.Platform()
}

// ScrapeRecent collects up to limit recent posts for niche. The browser
// session opened for the call is closed before it returns on every path.
func (s *Scraper) ScrapeRecent(ctx context.Context, niche string, limit int) ([]scrape.ScrapedPost, error) {
	platform := s.variant.Platform()
	niche = strings.TrimSpace(niche)
	if niche == "" {
		return nil, &scrape.NavigationError{Platform: platform, Op: scrape.OpValidate, Err: scrape.ErrInvalidNiche}
	}
	if limit < 0 {
		return nil, &scrape.NavigationError{
			Platform: platform,
			Op:       scrape.OpValidate,
			Err:      fmt.Errorf("%w: %d", scrape.ErrInvalidLimit, limit),
		}
	}
	if limit == 0 {
		return []scrape.ScrapedPost{}, nil
	}
	listingURL, err := s.variant.ListingURL(niche)
	if err != nil {
		return nil, &scrape.NavigationError{Platform: platform, Op: scrape.OpValidate, Err: err}
	}

	if s.opts.Limiter != nil {
		if err := s.opts.Limiter.Wait(ctx, string(platform)); err != nil {
			return nil, fmt.Errorf("%s: %w", platform, err)
		}
	}

	sess, err := browser.Open(ctx, s.driver, browser.Options{Headless: s.opts.Headless, Logger: s.logger})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	page := sess.Page()
	if err := page.Goto(ctx, listingURL, s.opts.NavTimeout); err != nil {
		return nil, &scrape.NavigationError{Platform: platform, URL: listingURL, Op: scrape.OpGoto, Err: err}
	}

	candidates, warnings, err := s.variant.ExtractCandidates(ctx, page, limit, s.opts.QueryTimeout)
	if err != nil {
		return nil, &scrape.NavigationError{Platform: platform, URL: listingURL, Op: scrape.OpQuery, Err: err}
	}

	posts := make([]scrape.ScrapedPost, 0, len(candidates))
	for _, c := range candidates {
		post, err := s.variant.BuildPost(c)
		if err != nil {
			warnings = append(warnings, scrape.ExtractionWarning{Platform: platform, Index: c.Index, Href: c.Href, Err: err})
			continue
		}
		posts = append(posts, post)
	}
	for _, w := range warnings {
		s.logger.Warn("candidate skipped", zap.Int("index", w.Index), zap.String("href", w.Href), zap.Error(w.Err))
		metrics.ObserveExtractionWarning(string(platform))
	}

	s.logger.Debug("listing scraped",
		zap.String("niche", niche),
		zap.Int("candidates", len(candidates)),
		zap.Int("posts", len(posts)),
		zap.Int("skipped", len(warnings)),
	)
	return posts, nil
}

// queryCandidates reads href and label attributes from the elements matching
// selector. Elements past limit are ignored.
func queryCandidates(ctx context.Context, platform scrape.Platform, page browser.Page, selector string, limit int, timeout time.Duration) ([]scrape.RawCandidate, []scrape.ExtractionWarning, error) {
	elements, err := page.QuerySelectorAll(ctx, selector, timeout)
	if err != nil {
		return nil, nil, err
	}
	if len(elements) > limit {
		elements = elements[:limit]
	}

	var (
		candidates = make([]scrape.RawCandidate, 0, len(elements))
		warnings   []scrape.ExtractionWarning
	)
	for i, el := range elements {
		href, ok, err := el.Attribute(ctx, "href")
		if err == nil && (!ok || strings.TrimSpace(href) == "") {
			err = fmt.Errorf("%w: missing href", scrape.ErrMalformedCandidate)
		}
		if err != nil {
			warnings = append(warnings, scrape.ExtractionWarning{Platform: platform, Index: i, Err: err})
			continue
		}
		candidates = append(candidates, scrape.RawCandidate{
			Index: i,
			Href:  strings.TrimSpace(href),
			Label: firstAttribute(ctx, el, "aria-label", "title"),
		})
	}
	return candidates, warnings, nil
}

// firstAttribute returns the first non-empty value among names. Labels are
// optional, so read failures yield an empty string.
func firstAttribute(ctx context.Context, el browser.Element, names ...string) string {
	for _, name := range names {
		v, ok, err := el.Attribute(ctx, name)
		if err != nil {
			return ""
		}
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
