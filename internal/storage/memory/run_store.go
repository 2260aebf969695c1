package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/trendscraper/internal/progress"
	"github.com/JakeFAU/trendscraper/internal/report"
	"github.com/JakeFAU/trendscraper/internal/storage"
)

// RunStore keeps run reports and their event timelines in memory.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]report.RunReport
	events map[uuid.UUID][]progress.Event
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:   make(map[uuid.UUID]report.RunReport),
		events: make(map[uuid.UUID][]progress.Event),
	}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, r report.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.RunID]; exists {
		return fmt.Errorf("run %s: %w", r.RunID, storage.ErrExists)
	}
	s.runs[r.RunID] = r
	return nil
}

// UpdateRun replaces a stored run.
func (s *RunStore) UpdateRun(_ context.Context, r report.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.RunID]; !ok {
		return fmt.Errorf("run %s: %w", r.RunID, storage.ErrNotFound)
	}
	s.runs[r.RunID] = r
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (report.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return report.RunReport{}, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}
	return r, nil
}

// ListRuns returns up to n finished runs for niche, newest first. n <= 0
// returns all of them.
func (s *RunStore) ListRuns(_ context.Context, niche string, n int) ([]report.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []report.RunReport
	for _, r := range s.runs {
		if r.Niche == niche && r.Status.Terminal() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// AppendEvents records part of a run timeline.
func (s *RunStore) AppendEvents(_ context.Context, runID uuid.UUID, events []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[runID] = append(s.events[runID], events...)
	return nil
}

// Events returns a copy of the run timeline.
func (s *RunStore) Events(_ context.Context, runID uuid.UUID) ([]progress.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[runID]
	out := make([]progress.Event, len(events))
	copy(out, events)
	return out, nil
}
