// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_platform_scrapes_total",
			Help: "Total number of coordinated platform scrapes, labeled by platform and outcome.",
		},
		[]string{"platform", "status"},
	)

	postsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_posts_total",
			Help: "Total number of normalized posts extracted, labeled by platform.",
		},
		[]string{"platform"},
	)

	extractionWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_extraction_warnings_total",
			Help: "Total number of listing candidates skipped because they could not be parsed.",
		},
		[]string{"platform"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry waits scheduled, labeled by platform.",
		},
		[]string{"platform"},
	)

	scrapeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_scrape_duration_seconds",
			Help:    "Histogram of end-to-end platform scrape latency including retries.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"platform"},
	)

	openSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_open_browser_sessions",
			Help: "Number of browser sessions currently open.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"platform"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	pipelineStepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pipeline_step_failures_total",
			Help: "Post-scrape pipeline steps that failed, labeled by step.",
		},
		[]string{"step"},
	)
)

// Scrape outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Label normalizes a platform name for use as a label value.
func Label(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return "unknown"
	}
	return platform
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape records one coordinated platform scrape.
func ObserveScrape(platform, status string, posts int, duration time.Duration) {
	label := Label(platform)
	scrapesTotal.WithLabelValues(label, status).Inc()
	if posts > 0 {
		postsTotal.WithLabelValues(label).Add(float64(posts))
	}
	scrapeDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveExtractionWarning counts a skipped candidate.
func ObserveExtractionWarning(platform string) {
	extractionWarningsTotal.WithLabelValues(Label(platform)).Inc()
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(platform string) {
	retriesTotal.WithLabelValues(Label(platform)).Inc()
}

// IncOpenSessions increments the open browser sessions gauge.
func IncOpenSessions() {
	openSessions.Inc()
}

// DecOpenSessions decrements the open browser sessions gauge.
func DecOpenSessions() {
	openSessions.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(platform string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(Label(platform)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStepFailure counts a failed pipeline step such as "snapshot" or
// "publish".
func ObserveStepFailure(step string) {
	pipelineStepFailuresTotal.WithLabelValues(step).Inc()
}
