// Package api hosts the HTTP server for submitting and inspecting runs.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a run in the background.
//   - GET /v1/runs/{run_id} and /v1/runs/{run_id}/events to read it back.
package api
