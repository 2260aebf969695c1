// Package chromedp implements the browser engine interfaces with chromedp and
// a locally installed Chrome.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/trendscraper/internal/browser"
)

// Name is the engine name used in configuration.
const Name = "chromedp"

var errPageTaken = errors.New("browser context already has a page")

// Config controls how Chrome is launched.
type Config struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath  string
	UserAgent string
	NoSandbox bool
}

// Driver implements browser.Driver.
type Driver struct {
	cfg Config
}

// New creates a chromedp-backed driver.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return Name }

// Start implements browser.Driver. chromedp has no separate runtime process, so
// the handle only carries the allocator settings used at launch.
func (d *Driver) Start(ctx context.Context) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start chromedp: %w", err)
	}
	return &handle{cfg: d.cfg}, nil
}

type handle struct {
	cfg Config
}

func (h *handle) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if h.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if h.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(h.cfg.ExecPath))
	}
	if h.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(h.cfg.UserAgent))
	}
	return opts
}

// Launch starts a Chrome process. The process lifetime is bound to Close, not
// to ctx, so a cancelled scrape still tears the browser down in order.
func (h *handle) Launch(ctx context.Context, headless bool) (browser.Browser, error) {
	base := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, h.allocatorOptions(headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := allocate(ctx, browserCtx, browserCancel); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}, nil
}

func (h *handle) Close() error { return nil }

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func (b *chromeBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	return &chromeContext{ctx: tabCtx, cancel: cancel}, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

// chromeContext is an incognito-style browser context. chromedp creates the
// browser context together with its first target, so the single page lives
// on the same chromedp context.
type chromeContext struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	opened bool
}

func (c *chromeContext) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return nil, errPageTaken
	}
	if err := allocate(ctx, c.ctx, c.cancel, network.Enable()); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	c.opened = true
	return &chromePage{ctx: c.ctx}, nil
}

func (c *chromeContext) Close() error {
	c.cancel()
	return nil
}

type chromePage struct {
	ctx context.Context
}

func (p *chromePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	err := runWithin(ctx, p.ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

func (p *chromePage) QuerySelectorAll(ctx context.Context, selector string, timeout time.Duration) ([]browser.Element, error) {
	var nodes []*cdp.Node
	err := runWithin(ctx, p.ctx, timeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]browser.Element, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, element{node: node})
	}
	return out, nil
}

// Close closes the tab. The owning context disposes the browser context.
func (p *chromePage) Close() error {
	if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close tab: %w", err)
	}
	return nil
}

type element struct {
	node *cdp.Node
}

// Attribute reads from the node snapshot chromedp captured during the query.
func (e element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := e.node.Attribute(name)
	return v, ok, nil
}

// allocate performs the first Run on a chromedp context. That Run creates the
// browser or target, whose lifetime is tied to target itself, so it must not
// run on a derived context. Cancelling caller aborts the allocation.
func allocate(caller, target context.Context, cancelTarget context.CancelFunc, actions ...chromedp.Action) error {
	stop := context.AfterFunc(caller, cancelTarget)
	defer stop()

	err := chromedp.Run(target, actions...)
	if err != nil && caller.Err() != nil {
		return errors.Join(err, caller.Err())
	}
	return err
}

// runWithin runs actions on the chromedp context target while honoring the
// caller's ctx and an optional timeout.
func runWithin(caller, target context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(target)
	defer cancel()
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, timeout)
		defer timeoutCancel()
	}
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && caller.Err() != nil {
		return errors.Join(err, caller.Err())
	}
	return err
}
