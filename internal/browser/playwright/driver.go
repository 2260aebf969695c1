// Package playwright implements the browser engine interfaces with
// playwright-go. It needs the Playwright driver and a Chromium build installed
// (`go run github.com/playwright-community/playwright-go/cmd/playwright install chromium`).
package playwright

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/JakeFAU/trendscraper/internal/browser"
)

// Name is the engine name used in configuration.
const Name = "playwright"

// Config controls how the browser is launched.
type Config struct {
	// ExecPath overrides the Chromium build Playwright installed.
	ExecPath  string
	UserAgent string
	NoSandbox bool
}

// Driver implements browser.Driver.
type Driver struct {
	cfg Config
}

// New creates a playwright-backed driver.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return Name }

// Start runs the Playwright driver process.
func (d *Driver) Start(ctx context.Context) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	pw, err := playwright.Run(&playwright.RunOptions{SkipInstallBrowsers: true})
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &handle{pw: pw, cfg: d.cfg}, nil
}

type handle struct {
	pw  *playwright.Playwright
	cfg Config
}

func (h *handle) launchOptions(headless bool) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(headless)}
	if h.cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(h.cfg.ExecPath)
	}
	if h.cfg.NoSandbox {
		opts.Args = append(opts.Args, "--no-sandbox", "--disable-dev-shm-usage")
	}
	return opts
}

func (h *handle) Launch(ctx context.Context, headless bool) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b, err := h.pw.Chromium.Launch(h.launchOptions(headless))
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return &pwBrowser{browser: b, userAgent: h.cfg.UserAgent}, nil
}

// Close stops the driver process.
func (h *handle) Close() error {
	if err := h.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

type pwBrowser struct {
	browser   playwright.Browser
	userAgent string
}

func contextOptions(userAgent string) playwright.BrowserNewContextOptions {
	var opts playwright.BrowserNewContextOptions
	if userAgent != "" {
		opts.UserAgent = playwright.String(userAgent)
	}
	return opts
}

func (b *pwBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	bc, err := b.browser.NewContext(contextOptions(b.userAgent))
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	return &pwContext{ctx: bc}, nil
}

func (b *pwBrowser) Close() error {
	if err := b.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) Close() error {
	if err := c.ctx.Close(); err != nil {
		return fmt.Errorf("close browser context: %w", err)
	}
	return nil
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	ms, err := timeoutMillis(ctx, timeout)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	_, err = p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms,
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// QuerySelectorAll returns whatever matches right now, like the other engines;
// Goto already waited for the document.
func (p *pwPage) QuerySelectorAll(ctx context.Context, selector string, _ time.Duration) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]browser.Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, element{el: h})
	}
	return out, nil
}

func (p *pwPage) Close() error {
	if err := p.page.Close(); err != nil {
		return fmt.Errorf("close page: %w", err)
	}
	return nil
}

// attributeReader is the part of playwright.ElementHandle an element needs.
type attributeReader interface {
	GetAttribute(name string) (string, error)
}

type element struct {
	el attributeReader
}

// Attribute reports an empty value as absent; Playwright maps a missing
// attribute to "".
func (e element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, err := e.el.GetAttribute(name)
	if err != nil {
		return "", false, fmt.Errorf("attribute %q: %w", name, err)
	}
	return v, v != "", nil
}

// timeoutMillis converts timeout to Playwright milliseconds, shortened to the
// caller's deadline. Playwright calls take no context, so this is how ctx
// bounds them. Nil means Playwright's default.
func timeoutMillis(ctx context.Context, timeout time.Duration) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, nil
	}
	return playwright.Float(float64(timeout.Milliseconds())), nil
}
