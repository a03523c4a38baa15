// Package observability provides Prometheus metrics instrumentation for the
// workflow engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challengecore_stage_executions_total",
			Help: "Total number of workflow stage executions",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challengecore_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// GENERATOR METRICS
// =============================================================================

var (
	generatorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challengecore_generator_calls_total",
			Help: "Total number of external generator calls",
		},
		[]string{"op", "status"}, // status: success, transient_error, malformed
	)

	generatorDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challengecore_generator_duration_seconds",
			Help:    "Generator call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"op"},
	)
)

// =============================================================================
// SESSION METRICS
// =============================================================================

var (
	sessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challengecore_sessions_started_total",
			Help: "Total number of exercise sessions started",
		},
	)

	sessionsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challengecore_sessions_completed_total",
			Help: "Total number of sessions reaching a terminal or error state",
		},
		[]string{"status"}, // status: passed, error
	)

	submissionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challengecore_submission_attempts_total",
			Help: "Total number of evaluated submissions",
		},
		[]string{"verdict"}, // verdict: passed, failed
	)
)

// =============================================================================
// HTTP METRICS
// =============================================================================

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challengecore_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "challengecore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"route"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordStageExecution records stage execution metrics.
// This should be called after stage processing completes.
func RecordStageExecution(stage string, status string, durationMS int) {
	stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordGeneratorCall records external generator call metrics.
func RecordGeneratorCall(op string, status string, durationMS int) {
	generatorCallsTotal.WithLabelValues(op, status).Inc()
	generatorDurationSeconds.WithLabelValues(op).Observe(float64(durationMS) / 1000.0)
}

// RecordSessionStarted records a new session.
func RecordSessionStarted() {
	sessionsStartedTotal.Inc()
}

// RecordSessionCompleted records a session reaching passed or error.
func RecordSessionCompleted(status string) {
	sessionsCompletedTotal.WithLabelValues(status).Inc()
}

// RecordSubmissionAttempt records an evaluated submission.
func RecordSubmissionAttempt(passed bool) {
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	submissionAttemptsTotal.WithLabelValues(verdict).Inc()
}

// RecordHTTPRequest records HTTP request metrics.
// This should be called from router middleware.
func RecordHTTPRequest(route string, status string, durationMS int) {
	httpRequestsTotal.WithLabelValues(route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(float64(durationMS) / 1000.0)
}
