// Package report defines the RunReport produced by every scrape run: what was
// requested, what each platform returned and which hashtags trended.
package report

import (
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/trendscraper/internal/coordinator"
	"github.com/JakeFAU/trendscraper/internal/scrape"
	"github.com/JakeFAU/trendscraper/internal/trends"
)

// Status is the lifecycle state of a run.
type Status string

// Run states. A run is partial when some but not all platforms failed.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusPartial || s == StatusFailed
}

// PlatformReport summarizes one platform of a run.
type PlatformReport struct {
	Platform   scrape.Platform `json:"platform"`
	Posts      int             `json:"posts"`
	Attempts   int             `json:"attempts"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

// RunReport is the durable record of a run.
type RunReport struct {
	RunID       uuid.UUID            `json:"run_id"`
	Niche       string               `json:"niche"`
	Limit       int                  `json:"limit"`
	Platforms   []scrape.Platform    `json:"platforms"`
	Status      Status               `json:"status"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
	Results     []PlatformReport     `json:"results,omitempty"`
	TopHashtags []trends.TagScore    `json:"top_hashtags,omitempty"`
	Posts       []scrape.ScrapedPost `json:"posts,omitempty"`
	SnapshotURI string               `json:"snapshot_uri,omitempty"`
}

// New starts a report in the running state.
func New(runID uuid.UUID, niche string, limit int, platforms []scrape.Platform, startedAt time.Time) RunReport {
	return RunReport{
		RunID:     runID,
		Niche:     niche,
		Limit:     limit,
		Platforms: append([]scrape.Platform(nil), platforms...),
		Status:    StatusRunning,
		StartedAt: startedAt,
	}
}

// Complete fills the per-platform results and final status from results.
// Platforms are listed in name order.
func (r *RunReport) Complete(results coordinator.Results, finishedAt time.Time) {
	r.Results = r.Results[:0]
	r.Posts = nil
	for _, o := range results {
		pr := PlatformReport{
			Platform:   o.Platform,
			Posts:      len(o.Posts),
			Attempts:   o.Attempts,
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			pr.Error = o.Err.Error()
		}
		r.Results = append(r.Results, pr)
	}
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].Platform < r.Results[j].Platform })
	r.Posts = results.Posts()

	failed := len(results.Failed())
	switch {
	case failed == 0:
		r.Status = StatusSucceeded
	case failed == len(results):
		r.Status = StatusFailed
	default:
		r.Status = StatusPartial
	}
	finished := finishedAt
	r.FinishedAt = &finished
}

// TagCount returns how many posts carried tag in this run, or zero. The
// stored posts are counted so tags outside TopHashtags still report their
// real count; reports without posts fall back to TopHashtags.
func (r RunReport) TagCount(tag string) int {
	if len(r.Posts) > 0 {
		n := 0
		for _, p := range r.Posts {
			if slices.Contains(trends.PostTags(p), tag) {
				n++
			}
		}
		return n
	}
	for _, s := range r.TopHashtags {
		if s.Tag == tag {
			return s.Count
		}
	}
	return 0
}

// Attributes labels the run-complete message so subscribers can filter
// without decoding the body.
func (r RunReport) Attributes() map[string]string {
	return map[string]string{
		"run_id": r.RunID.String(),
		"niche":  r.Niche,
		"status": string(r.Status),
	}
}
