// Package rod implements the browser engine interfaces with go-rod.
package rod

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/JakeFAU/trendscraper/internal/browser"
)

// Name is the engine name used in configuration.
const Name = "rod"

// Config controls how the browser is launched.
type Config struct {
	// BrowserBin overrides the browser binary; rod downloads one otherwise.
	BrowserBin string
	UserAgent  string
	NoSandbox  bool
}

// Driver implements browser.Driver.
type Driver struct {
	cfg Config
}

// New creates a rod-backed driver.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return Name }

// Start prepares a launcher. The browser process starts on Launch.
func (d *Driver) Start(ctx context.Context) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start rod: %w", err)
	}
	l := launcher.New().NoSandbox(d.cfg.NoSandbox)
	if d.cfg.BrowserBin != "" {
		l = l.Bin(d.cfg.BrowserBin)
	}
	return &handle{launcher: l, cfg: d.cfg}, nil
}

type handle struct {
	launcher *launcher.Launcher
	cfg      Config
}

func (h *handle) Launch(ctx context.Context, headless bool) (browser.Browser, error) {
	controlURL, err := h.launcher.Context(ctx).Headless(headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &rodBrowser{browser: b, userAgent: h.cfg.UserAgent}, nil
}

// Close kills the browser process if Launch started one.
func (h *handle) Close() error {
	h.launcher.Kill()
	return nil
}

type rodBrowser struct {
	browser   *rod.Browser
	userAgent string
}

func (b *rodBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	incognito, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	return &rodContext{browser: incognito, userAgent: b.userAgent}, nil
}

func (b *rodBrowser) Close() error {
	if err := b.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// rodContext wraps an incognito browser; closing it disposes only that
// browser context.
type rodContext struct {
	browser   *rod.Browser
	userAgent string
}

func (c *rodContext) NewPage(ctx context.Context) (browser.Page, error) {
	p, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if c.userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.userAgent}); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("set user-agent: %w", err)
		}
	}
	return &rodPage{page: p}, nil
}

func (c *rodContext) Close() error {
	if err := c.browser.Close(); err != nil {
		return fmt.Errorf("dispose browser context: %w", err)
	}
	return nil
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) bind(ctx context.Context, timeout time.Duration) *rod.Page {
	page := p.page.Context(ctx)
	if timeout > 0 {
		page = page.Timeout(timeout)
	}
	return page
}

func (p *rodPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	page := p.bind(ctx, timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (p *rodPage) QuerySelectorAll(ctx context.Context, selector string, timeout time.Duration) ([]browser.Element, error) {
	els, err := p.bind(ctx, timeout).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, element{el: el})
	}
	return out, nil
}

func (p *rodPage) Close() error {
	if err := p.page.Close(); err != nil {
		return fmt.Errorf("close page: %w", err)
	}
	return nil
}

type element struct {
	el *rod.Element
}

func (e element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("attribute %q: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}
