// Package browsertest provides a scripted in-memory browser engine that counts
// every acquisition and release, for tests of code built on package browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/trendscraper/internal/browser"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// Element is a scripted DOM element.
type Element struct {
	Attrs map[string]string
	// Err is returned from every Attribute call when set.
	Err error
}

// Anchor builds an element with only an href attribute.
func Anchor(href string) Element {
	return Element{Attrs: map[string]string{"href": href}}
}

// Attribute implements browser.Element.
func (e Element) Attribute(_ context.Context, name string) (string, bool, error) {
	if e.Err != nil {
		return "", false, e.Err
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

// Counts is a snapshot of the driver's bookkeeping.
type Counts struct {
	Acquired map[string]int
	Released map[string]int
	Gotos    int
	Queries  int
	URLs     []string
}

// Balanced reports whether every acquired resource was released exactly once.
func (c Counts) Balanced() bool {
	for _, stage := range []string{scrape.StageHandle, scrape.StageBrowser, scrape.StageContext, scrape.StagePage} {
		if c.Acquired[stage] != c.Released[stage] {
			return false
		}
	}
	return true
}

// Driver is a fake browser.Driver. Configure the exported fields before use;
// it is safe for concurrent sessions.
type Driver struct {
	// FailStage makes acquisition fail at the named stage (see scrape.Stage*).
	FailStage string
	// FailErr is the error returned for FailStage; a generic error by default.
	FailErr error
	// CloseErr is returned by every Close call (release still counts).
	CloseErr error
	// GotoErr is returned from Page.Goto.
	GotoErr error
	// QueryErr is returned from Page.QuerySelectorAll.
	QueryErr error
	// BlockGoto makes Goto wait until its context ends.
	BlockGoto bool
	// Elements maps a selector to the elements returned for it.
	Elements map[string][]Element
	// OnGoto runs at the start of every Goto.
	OnGoto func(url string)

	mu     sync.Mutex
	counts Counts
}

// Name implements browser.Driver.
func (d *Driver) Name() string { return "fake" }

// Start implements browser.Driver.
func (d *Driver) Start(context.Context) (browser.Handle, error) {
	if err := d.acquire(scrape.StageHandle); err != nil {
		return nil, err
	}
	return &handle{d: d}, nil
}

// Counts returns a copy of the current counters.
func (d *Driver) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := Counts{
		Acquired: make(map[string]int, len(d.counts.Acquired)),
		Released: make(map[string]int, len(d.counts.Released)),
		Gotos:    d.counts.Gotos,
		Queries:  d.counts.Queries,
		URLs:     append([]string(nil), d.counts.URLs...),
	}
	for k, v := range d.counts.Acquired {
		out.Acquired[k] = v
	}
	for k, v := range d.counts.Released {
		out.Released[k] = v
	}
	return out
}

func (d *Driver) acquire(stage string) error {
	if d.FailStage == stage {
		if d.FailErr != nil {
			return d.FailErr
		}
		return fmt.Errorf("fake %s acquisition failed", stage)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts.Acquired == nil {
		d.counts.Acquired = make(map[string]int)
	}
	d.counts.Acquired[stage]++
	return nil
}

func (d *Driver) release(stage string) error {
	d.mu.Lock()
	if d.counts.Released == nil {
		d.counts.Released = make(map[string]int)
	}
	d.counts.Released[stage]++
	d.mu.Unlock()
	return d.CloseErr
}

type handle struct{ d *Driver }

func (h *handle) Launch(context.Context, bool) (browser.Browser, error) {
	if err := h.d.acquire(scrape.StageBrowser); err != nil {
		return nil, err
	}
	return &fakeBrowser{d: h.d}, nil
}

func (h *handle) Close() error { return h.d.release(scrape.StageHandle) }

type fakeBrowser struct{ d *Driver }

func (b *fakeBrowser) NewContext(context.Context) (browser.Context, error) {
	if err := b.d.acquire(scrape.StageContext); err != nil {
		return nil, err
	}
	return &fakeContext{d: b.d}, nil
}

func (b *fakeBrowser) Close() error { return b.d.release(scrape.StageBrowser) }

type fakeContext struct{ d *Driver }

func (c *fakeContext) NewPage(context.Context) (browser.Page, error) {
	if err := c.d.acquire(scrape.StagePage); err != nil {
		return nil, err
	}
	return &page{d: c.d}, nil
}

func (c *fakeContext) Close() error { return c.d.release(scrape.StageContext) }

type page struct{ d *Driver }

func (p *page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	p.d.mu.Lock()
	p.d.counts.Gotos++
	p.d.counts.URLs = append(p.d.counts.URLs, url)
	p.d.mu.Unlock()
	if p.d.OnGoto != nil {
		p.d.OnGoto(url)
	}
	if p.d.BlockGoto {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		<-ctx.Done()
		return fmt.Errorf("fake goto: %w", ctx.Err())
	}
	return p.d.GotoErr
}

func (p *page) QuerySelectorAll(_ context.Context, selector string, _ time.Duration) ([]browser.Element, error) {
	p.d.mu.Lock()
	p.d.counts.Queries++
	p.d.mu.Unlock()
	if p.d.QueryErr != nil {
		return nil, p.d.QueryErr
	}
	scripted, ok := p.d.Elements[selector]
	if !ok {
		return nil, nil
	}
	out := make([]browser.Element, 0, len(scripted))
	for _, el := range scripted {
		out = append(out, el)
	}
	return out, nil
}

func (p *page) Close() error { return p.d.release(scrape.StagePage) }

// ErrScripted is a convenience error for tests.
var ErrScripted = errors.New("scripted failure")
