// Package browser owns the scoped lifecycle of one headless browser session and
// the engine capabilities the scrapers consume.
package browser

import (
	"context"
	"time"
)

// Driver starts an engine handle. Implementations live in subpackages.
type Driver interface {
	Name() string
	Start(ctx context.Context) (Handle, error)
}

// Handle is the engine handle; it launches browsers.
type Handle interface {
	Launch(ctx context.Context, headless bool) (Browser, error)
	Close() error
}

// Browser is a running browser instance.
type Browser interface {
	NewContext(ctx context.Context) (Context, error)
	Close() error
}

// Context is an isolated browser context (separate cookies and storage).
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	QuerySelectorAll(ctx context.Context, selector string, timeout time.Duration) ([]Element, error)
	Close() error
}

// Element is a DOM element handle.
type Element interface {
	// Attribute returns the attribute value and whether it was present.
	Attribute(ctx context.Context, name string) (string, bool, error)
}
