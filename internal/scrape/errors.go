package scrape

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks caller mistakes that retrying cannot fix.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidNiche signals a niche that is empty or not usable by a platform.
	ErrInvalidNiche = fmt.Errorf("%w: niche", ErrInvalidInput)
	// ErrInvalidLimit signals a negative candidate limit.
	ErrInvalidLimit = fmt.Errorf("%w: limit", ErrInvalidInput)
	// ErrMalformedCandidate signals a listing entry whose identifier cannot be parsed.
	ErrMalformedCandidate = errors.New("malformed candidate")
)

// Launch stages, in acquisition order.
const (
	StageHandle  = "handle"
	StageBrowser = "browser"
	StageContext = "context"
	StagePage    = "page"
)

// LaunchError reports a failed browser resource acquisition.
type LaunchError struct {
	Stage string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Navigation operations recorded on NavigationError.
const (
	OpValidate = "validate"
	OpGoto     = "goto"
	OpQuery    = "query"
)

// NavigationError reports that the listing page could not be reached or read.
type NavigationError struct {
	Platform Platform
	URL      string
	Op       string
	Err      error
}

func (e *NavigationError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Platform, e.Op, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionWarning describes a skipped candidate. It is reported through
// logs and metrics and never returned as a call failure.
type ExtractionWarning struct {
	Platform Platform
	Index    int
	Href     string
	Err      error
}

func (w ExtractionWarning) Error() string {
	return fmt.Sprintf("%s candidate %d (%q) skipped: %v", w.Platform, w.Index, w.Href, w.Err)
}

func (w ExtractionWarning) Unwrap() error { return w.Err }

// IsRetryable reports whether err is a transient environment failure.
// Input validation failures are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidInput)
}
