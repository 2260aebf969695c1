// Package storage holds the errors shared by the run, post and blob stores.
// Implementations live in the memory, local, gcs and postgres subpackages.
package storage

import "errors"

var (
	// ErrNotFound is returned when a run or object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a run whose ID is already stored.
	ErrExists = errors.New("already exists")
)

// SnapshotPath is the object path of a run snapshot below an optional prefix.
func SnapshotPath(prefix, niche, runID string) string {
	path := "runs/" + niche + "/" + runID + ".json"
	if prefix == "" {
		return path
	}
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix + "/" + path
}
