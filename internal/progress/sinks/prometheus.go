package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/trendscraper/internal/progress"
)

// PrometheusSink exports run-level collectors derived from progress events.
// Per-platform scrape counters live in package metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    prometheus.Histogram
	platformRuns  *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Total scrape runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_completed_total",
			Help: "Total scrape runs completed, partitioned by whether every platform failed.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_runs_running",
			Help: "Current number of running scrape runs.",
		}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		platformRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_run_platforms_total",
			Help: "Platform outcomes within runs, partitioned by platform and result.",
		}, []string{"platform", "result"}),
		tracker: &runTracker{running: make(map[uuid.UUID]*runState)},
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.platformRuns,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StagePlatformDone:
			s.platformRuns.WithLabelValues(evt.Platform, "success").Inc()
			s.tracker.record(evt.RunID, true)
		case progress.StagePlatformError:
			s.platformRuns.WithLabelValues(evt.Platform, "error").Inc()
			s.tracker.record(evt.RunID, false)
		case progress.StageRunDone:
			result := "success"
			if st, ok := s.tracker.complete(evt.RunID); ok {
				s.runsRunning.Dec()
				if st.failed > 0 && st.succeeded == 0 {
					result = "error"
				}
			}
			s.runsCompleted.WithLabelValues(result).Inc()
			if evt.Dur > 0 {
				s.runRuntime.Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runState struct {
	succeeded int
	failed    int
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]*runState
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = &runState{}
	return true
}

func (t *runTracker) record(id uuid.UUID, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.running[id]
	if st == nil {
		return
	}
	if ok {
		st.succeeded++
	} else {
		st.failed++
	}
}

func (t *runTracker) complete(id uuid.UUID) (runState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.running[id]
	if !ok {
		return runState{}, false
	}
	delete(t.running, id)
	return *st, true
}
