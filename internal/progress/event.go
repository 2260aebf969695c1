package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the lifecycle milestone an Event records.
type Stage string

// Run and platform milestones, in the order a run emits them.
const (
	StageRunStart      Stage = "RUN_START"
	StagePlatformStart Stage = "PLATFORM_START"
	StagePlatformRetry Stage = "PLATFORM_RETRY"
	StagePlatformDone  Stage = "PLATFORM_DONE"
	StagePlatformError Stage = "PLATFORM_ERROR"
	StageRunDone       Stage = "RUN_DONE"
)

// Event is one lifecycle milestone of a run.
type Event struct {
	RunID uuid.UUID `json:"run_id"`
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	// Platform scopes PLATFORM_* events.
	Platform string `json:"platform,omitempty"`
	// Attempt is the 1-based attempt that just finished.
	Attempt int `json:"attempt,omitempty"`
	// Posts counts the posts returned by a successful platform scrape.
	Posts int           `json:"posts,omitempty"`
	Dur   time.Duration `json:"dur,omitempty"`
	// Note carries low-volume context such as error text.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StagePlatformStart, StagePlatformDone, StagePlatformError:
		if e.Platform == "" {
			return fmt.Errorf("%s requires platform", e.Stage)
		}
	case StagePlatformRetry:
		if e.Platform == "" {
			return fmt.Errorf("%s requires platform", e.Stage)
		}
		if e.Attempt <= 0 {
			return errors.New("retry requires attempt >= 1")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Posts < 0 {
		return errors.New("posts must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends a platform or a run.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StagePlatformDone, StagePlatformError, StageRunDone:
		return true
	default:
		return false
	}
}
