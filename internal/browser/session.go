package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/metrics"
	"github.com/JakeFAU/trendscraper/internal/scrape"
)

// Options controls how a session is opened.
type Options struct {
	Headless bool
	Logger   *zap.Logger
}

// Session exclusively owns one handle, browser, context and page.
// It must be closed on every exit path of the call that opened it.
type Session struct {
	handle  Handle
	browser Browser
	context Context
	page    Page
	logger  *zap.Logger

	closeOnce sync.Once
}

// Open acquires the handle, browser, isolated context and page in that order.
// On failure everything acquired so far is released before the LaunchError is
// returned.
func Open(ctx context.Context, driver Driver, opts Options) (*Session, error) {
	if driver == nil {
		return nil, &scrape.LaunchError{Stage: scrape.StageHandle, Err: errors.New("no browser driver configured")}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{logger: logger.With(zap.String("engine", driver.Name()))}

	handle, err := driver.Start(ctx)
	if err != nil {
		return nil, s.abort(scrape.StageHandle, err)
	}
	s.handle = handle

	b, err := handle.Launch(ctx, opts.Headless)
	if err != nil {
		return nil, s.abort(scrape.StageBrowser, err)
	}
	s.browser = b

	bctx, err := b.NewContext(ctx)
	if err != nil {
		return nil, s.abort(scrape.StageContext, err)
	}
	s.context = bctx

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, s.abort(scrape.StagePage, err)
	}
	s.page = page

	metrics.IncOpenSessions()
	return s, nil
}

// Page returns the session's page.
func (s *Session) Page() Page {
	return s.page
}

// Close releases page, context, browser and handle in that order. Every step
// runs even if an earlier one fails; failures are logged, never returned.
// Calls after the first are no-ops.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		opened := s.page != nil
		s.release()
		if opened {
			metrics.DecOpenSessions()
		}
	})
}

func (s *Session) abort(stage string, err error) error {
	s.closeOnce.Do(s.release)
	return &scrape.LaunchError{Stage: stage, Err: err}
}

func (s *Session) release() {
	steps := []struct {
		stage    string
		resource closer
	}{
		{scrape.StagePage, s.page},
		{scrape.StageContext, s.context},
		{scrape.StageBrowser, s.browser},
		{scrape.StageHandle, s.handle},
	}
	for _, step := range steps {
		if step.resource == nil {
			continue
		}
		if err := safeClose(step.resource); err != nil {
			s.logger.Warn("browser release failed", zap.String("stage", step.stage), zap.Error(err))
		}
	}
}

type closer interface{ Close() error }

func safeClose(c closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during close: %v", r)
		}
	}()
	return c.Close()
}
