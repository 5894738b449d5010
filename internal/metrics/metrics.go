// Package metrics exposes Prometheus metrics for HTTP traffic, jobs and the
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/mediatools-api/internal/tools"
)

const unmatched = "unmatched"

// Job status label values.
const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatools_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediatools_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatools_jobs_total",
			Help: "Total number of finished jobs by tool and terminal status.",
		},
		[]string{"tool", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediatools_job_duration_seconds",
			Help:    "Time the engine spent on a job, in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"tool"},
	)

	engineReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediatools_engine_ready",
			Help: "1 when the media engine is loaded and ready, 0 otherwise.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(engineReady)

	// Pre-initialize label combinations so they appear in /metrics with value
	// 0 from startup.
	for _, def := range tools.All() {
		jobsTotal.WithLabelValues(string(def.Tool), statusSucceeded)
		jobsTotal.WithLabelValues(string(def.Tool), statusFailed)
	}
}

// Middleware records request count and duration for every HTTP request.
// Uses the chi route pattern (not the raw path) to avoid unbounded cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// Handler returns the Prometheus metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Jobs records job outcomes. It satisfies job.Metrics.
type Jobs struct{}

// JobFinished counts a terminal job and observes its duration.
func (Jobs) JobFinished(tool, status string, duration time.Duration) {
	jobsTotal.WithLabelValues(tool, status).Inc()
	if duration > 0 {
		jobDuration.WithLabelValues(tool).Observe(duration.Seconds())
	}
}

// SetEngineReady updates the engine readiness gauge.
func SetEngineReady(ready bool) {
	if ready {
		engineReady.Set(1)
		return
	}
	engineReady.Set(0)
}
