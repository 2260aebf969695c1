// Package progress carries run and platform lifecycle events from the
// coordinator to pluggable sinks. Emitting never blocks a scrape; events are
// buffered and delivered in batches on a background goroutine.
package progress
