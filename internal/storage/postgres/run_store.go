package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/trendscraper/internal/progress"
	"github.com/JakeFAU/trendscraper/internal/report"
	"github.com/JakeFAU/trendscraper/internal/storage"
)

// RunStore keeps run reports as JSONB plus the event timeline of each run.
type RunStore struct {
	db DB
}

// NewRunStore wraps db.
func NewRunStore(db DB) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &RunStore{db: db}, nil
}

// CreateRun inserts a new run.
func (s *RunStore) CreateRun(ctx context.Context, r report.RunReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO runs (run_id, niche, status, started_at, finished_at, report)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id) DO NOTHING`,
		r.RunID, r.Niche, string(r.Status), r.StartedAt, r.FinishedAt, payload)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", r.RunID, storage.ErrExists)
	}
	return nil
}

// UpdateRun replaces the stored report of an existing run.
func (s *RunStore) UpdateRun(ctx context.Context, r report.RunReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
UPDATE runs SET status = $1, finished_at = $2, report = $3
WHERE run_id = $4`,
		string(r.Status), r.FinishedAt, payload, r.RunID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", r.RunID, storage.ErrNotFound)
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (report.RunReport, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT report FROM runs WHERE run_id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return report.RunReport{}, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return report.RunReport{}, fmt.Errorf("select run: %w", err)
	}
	var r report.RunReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return report.RunReport{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns up to n finished runs for niche, newest first. n <= 0
// returns all of them.
func (s *RunStore) ListRuns(ctx context.Context, niche string, n int) ([]report.RunReport, error) {
	query := `
SELECT report FROM runs
WHERE niche = $1 AND status <> $2
ORDER BY started_at DESC`
	args := []any{niche, string(report.StatusRunning)}
	if n > 0 {
		query += " LIMIT $3"
		args = append(args, n)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []report.RunReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var r report.RunReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// AppendEvents writes part of a run timeline in one transaction.
func (s *RunStore) AppendEvents(ctx context.Context, runID uuid.UUID, events []progress.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin events tx: %w", err)
	}
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO run_events (run_id, ts, stage, platform, payload)
VALUES ($1, $2, $3, $4, $5)`,
			runID, evt.TS, string(evt.Stage), evt.Platform, payload); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit events tx: %w", err)
	}
	return nil
}

// Events returns the timeline of a run in insertion order.
func (s *RunStore) Events(ctx context.Context, runID uuid.UUID) ([]progress.Event, error) {
	rows, err := s.db.Query(ctx, `SELECT payload FROM run_events WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := []progress.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var evt progress.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
