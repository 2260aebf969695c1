// Package dispatcher executes accepted runs on a fixed pool of workers fed by
// a bounded queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/report"
)

var (
	// ErrQueueFull is returned by Reserve when every queue slot is taken.
	ErrQueueFull = errors.New("run queue is full")
	// ErrClosed is returned once Shutdown has begun.
	ErrClosed = errors.New("dispatcher closed")
)

// Executor runs one started run to completion. *pipeline.Pipeline implements it.
type Executor interface {
	Execute(ctx context.Context, rep report.RunReport) (report.RunReport, error)
}

// Config sizes the pool.
type Config struct {
	// Workers is the number of runs executed at once.
	Workers int
	// QueueDepth is the number of accepted runs that may wait for a worker.
	QueueDepth int
	// RunTimeout bounds one run; zero means no bound.
	RunTimeout time.Duration
	Logger     *zap.Logger
}

// Dispatcher fans queued runs out to its workers.
type Dispatcher struct {
	exec   Executor
	cfg    Config
	logger *zap.Logger
	queue  chan report.RunReport

	mu      sync.Mutex
	pending int
	closed  bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New starts the workers. They stop after Shutdown.
func New(exec Executor, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		exec:    exec,
		cfg:     cfg,
		logger:  cfg.Logger.Named("dispatcher"),
		queue:   make(chan report.RunReport, cfg.QueueDepth),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
	return d
}

// Reserve claims a queue slot. A successful Reserve must be followed by
// exactly one Submit or Release.
func (d *Dispatcher) Reserve() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.pending >= d.cfg.QueueDepth {
		return ErrQueueFull
	}
	d.pending++
	return nil
}

// Release gives back a slot that will not be submitted.
func (d *Dispatcher) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending > 0 {
		d.pending--
	}
}

// Submit queues a run into a reserved slot. It never blocks.
func (d *Dispatcher) Submit(rep report.RunReport) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		if d.pending > 0 {
			d.pending--
		}
		return ErrClosed
	}
	d.queue <- rep
	return nil
}

// Pending reports how many accepted runs are waiting for a worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Shutdown stops accepting runs and waits for queued and running ones. When
// ctx ends first the remaining runs are cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}

func (d *Dispatcher) work(index int) {
	defer d.wg.Done()
	logger := d.logger.With(zap.Int("worker", index))
	for rep := range d.queue {
		d.mu.Lock()
		d.pending--
		d.mu.Unlock()
		d.run(logger, rep)
	}
}

func (d *Dispatcher) run(logger *zap.Logger, rep report.RunReport) {
	logger = logger.With(zap.String("run_id", rep.RunID.String()))
	ctx := d.baseCtx
	if d.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.RunTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("run panicked", zap.Any("panic", rec))
		}
	}()
	if _, err := d.exec.Execute(ctx, rep); err != nil {
		logger.Error("run failed", zap.Error(err))
	}
}
