package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/progress"
)

// EventRepository stores the event timeline of each run.
type EventRepository interface {
	AppendEvents(ctx context.Context, runID uuid.UUID, events []progress.Event) error
}

// StoreSink groups a batch by run and appends each group to the repository,
// so a run's timeline is written with one call per flush.
type StoreSink struct {
	repo   EventRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo EventRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume preserves event order within each run.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var order []uuid.UUID
	grouped := make(map[uuid.UUID][]progress.Event)
	for _, evt := range batch {
		if _, seen := grouped[evt.RunID]; !seen {
			order = append(order, evt.RunID)
		}
		grouped[evt.RunID] = append(grouped[evt.RunID], evt)
	}
	for _, runID := range order {
		if err := s.repo.AppendEvents(ctx, runID, grouped[runID]); err != nil {
			return fmt.Errorf("append events for run %s: %w", runID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
