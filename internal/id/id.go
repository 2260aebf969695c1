// Package id generates run identifiers.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator yields new run IDs.
type Generator interface {
	NewID() (uuid.UUID, error)
}

// UUIDv7 creates time-ordered UUIDs, so run IDs sort by start time.
type UUIDv7 struct{}

// NewID returns a UUIDv7.
func (UUIDv7) NewID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// Func adapts a function to Generator.
type Func func() (uuid.UUID, error)

// NewID calls f.
func (f Func) NewID() (uuid.UUID, error) {
	return f()
}
