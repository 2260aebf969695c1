package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trendscraper/internal/report"
)

type blockingExecutor struct {
	release chan struct{}
	entered chan uuid.UUID

	mu   sync.Mutex
	done []uuid.UUID
	errs []error
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{release: make(chan struct{}), entered: make(chan uuid.UUID, 16)}
}

func (e *blockingExecutor) Execute(ctx context.Context, rep report.RunReport) (report.RunReport, error) {
	e.entered <- rep.RunID
	var err error
	select {
	case <-e.release:
	case <-ctx.Done():
		err = ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.errs = append(e.errs, err)
		return rep, err
	}
	e.done = append(e.done, rep.RunID)
	return rep, nil
}

func (e *blockingExecutor) finished() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.done)
}

func submit(t *testing.T, d *Dispatcher) uuid.UUID {
	t.Helper()
	require.NoError(t, d.Reserve())
	rep := report.RunReport{RunID: uuid.New()}
	require.NoError(t, d.Submit(rep))
	return rep.RunID
}

func TestDispatcherRunsSubmittedReports(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	close(exec.release)
	d := New(exec, Config{Workers: 2, QueueDepth: 4})

	for i := 0; i < 3; i++ {
		submit(t, d)
	}
	require.NoError(t, d.Shutdown(context.Background()))
	require.Equal(t, 3, exec.finished())
	require.Zero(t, d.Pending())
}

func TestDispatcherReserveRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	d := New(exec, Config{Workers: 1, QueueDepth: 1})

	first := submit(t, d)
	require.Equal(t, first, <-exec.entered)

	submit(t, d)
	require.ErrorIs(t, d.Reserve(), ErrQueueFull)
	require.Equal(t, 1, d.Pending())

	close(exec.release)
	require.NoError(t, d.Shutdown(context.Background()))
	require.Equal(t, 2, exec.finished())
}

func TestDispatcherReleaseFreesSlot(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	d := New(exec, Config{Workers: 1, QueueDepth: 1})
	t.Cleanup(func() { close(exec.release); _ = d.Shutdown(context.Background()) })

	require.NoError(t, d.Reserve())
	require.ErrorIs(t, d.Reserve(), ErrQueueFull)
	d.Release()
	require.NoError(t, d.Reserve())
	d.Release()
}

func TestDispatcherShutdownCancelsRunningRuns(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	d := New(exec, Config{Workers: 1, QueueDepth: 2})
	submit(t, d)
	<-exec.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
	require.Zero(t, exec.finished())

	require.ErrorIs(t, d.Reserve(), ErrClosed)
	require.ErrorIs(t, d.Submit(report.RunReport{}), ErrClosed)
}

func TestDispatcherRunTimeout(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	d := New(exec, Config{Workers: 1, QueueDepth: 1, RunTimeout: 10 * time.Millisecond})
	submit(t, d)
	require.NoError(t, d.Shutdown(context.Background()))

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.Len(t, exec.errs, 1)
	require.ErrorIs(t, exec.errs[0], context.DeadlineExceeded)
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, report.RunReport) (report.RunReport, error) {
	panic("boom")
}

func TestDispatcherSurvivesPanics(t *testing.T) {
	t.Parallel()

	d := New(panickingExecutor{}, Config{Workers: 1, QueueDepth: 2})
	submit(t, d)
	submit(t, d)
	require.NoError(t, d.Shutdown(context.Background()))
}
