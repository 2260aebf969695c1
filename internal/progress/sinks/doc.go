// Package sinks implements progress consumers: structured logging, run-level
// Prometheus collectors and a run timeline repository.
package sinks
