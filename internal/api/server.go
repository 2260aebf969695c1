package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/trendscraper/internal/dispatcher"
	"github.com/JakeFAU/trendscraper/internal/metrics"
	"github.com/JakeFAU/trendscraper/internal/pipeline"
	"github.com/JakeFAU/trendscraper/internal/progress"
	"github.com/JakeFAU/trendscraper/internal/report"
	"github.com/JakeFAU/trendscraper/internal/storage"
)

// Runner starts and executes runs. *pipeline.Pipeline implements it.
type Runner interface {
	Start(ctx context.Context, req pipeline.Request) (report.RunReport, error)
	Execute(ctx context.Context, rep report.RunReport) (report.RunReport, error)
	// Abort marks a started run failed when it cannot be queued.
	Abort(ctx context.Context, rep report.RunReport, cause error) (report.RunReport, error)
}

// RunReader reads stored runs and their timelines.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (report.RunReport, error)
	Events(ctx context.Context, runID uuid.UUID) ([]progress.Event, error)
}

// Options tune the server.
type Options struct {
	// APIKey enables X-API-Key auth on /v1 routes when set.
	APIKey         string
	RequestTimeout time.Duration
	// RunTimeout bounds one background run; zero means no bound.
	RunTimeout time.Duration
	// Workers is how many runs execute at once.
	Workers int
	// QueueDepth is how many accepted runs may wait for a worker before
	// submissions are refused with 503.
	QueueDepth int
	// Ready reports whether downstream dependencies are reachable.
	Ready  func(context.Context) error
	Logger *zap.Logger
}

// Server wires HTTP handlers to the pipeline and run store.
type Server struct {
	router chi.Router
	runner Runner
	runs   RunReader
	opts   Options
	logger *zap.Logger

	dispatch *dispatcher.Dispatcher
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, runs RunReader, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		runner: runner,
		runs:   runs,
		opts:   opts,
		logger: opts.Logger.Named("api"),
	}
	s.dispatch = dispatcher.New(runner, dispatcher.Config{
		Workers:    opts.Workers,
		QueueDepth: opts.QueueDepth,
		RunTimeout: opts.RunTimeout,
		Logger:     s.logger,
	})

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metricsMiddleware)
	r.Use(recoverMiddleware(s.logger))
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/events", s.getRunEvents)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown waits for background runs. When ctx ends first the runs are
// cancelled and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.dispatch.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.dispatch.Reserve(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	rep, err := s.runner.Start(r.Context(), req)
	if err != nil {
		s.dispatch.Release()
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		default:
			s.logger.Error("start run failed", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	if err := s.dispatch.Submit(rep); err != nil {
		if _, abortErr := s.runner.Abort(context.WithoutCancel(r.Context()), rep, err); abortErr != nil {
			s.logger.Error("abort run failed",
				zap.String("run_id", rep.RunID.String()),
				zap.Error(abortErr))
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":    rep.RunID,
		"status":    rep.Status,
		"platforms": rep.Platforms,
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	rep, err := s.runs.GetRun(r.Context(), runID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) getRunEvents(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	events, err := s.runs.Events(r.Context(), runID)
	if err != nil {
		s.logger.Error("list events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "events": events})
}

func parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return runID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
