package review

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects review orchestration metrics.
//
// Metrics exposed (all namespaced with "mozart_"):
//
//  1. backend_latency_ms (histogram): reviewer call duration.
//     Labels: backend, provider, status (ok, timed_out, failed).
//  2. backend_failures_total (counter): failed reviewer calls.
//     Labels: backend, kind.
//  3. sessions_total (counter): finished sessions.
//     Labels: mode, status (completed, degraded, failed, cancelled).
//  4. inflight_backends (gauge): reviewer calls currently in flight.
//  5. judge_calls_total (counter): judge calls. Labels: status (ok, failed).
//  6. retries_total (counter): retry attempts made by RetryingBackend.
//     Labels: backend, kind.
//  7. clamped_scores_total (counter): out-of-range scores that were clamped.
//     Labels: backend.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := review.NewPrometheusMetrics(registry)
//	eng, _ := review.NewEngine(cfg, factory, review.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	backendLatency  *prometheus.HistogramVec
	backendFailures *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	inflight        prometheus.Gauge
	judgeCalls      *prometheus.CounterVec
	retries         *prometheus.CounterVec
	clamped         *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		backendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mozart",
			Name:      "backend_latency_ms",
			Help:      "Reviewer backend call duration in milliseconds",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"backend", "provider", "status"}),
		backendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mozart",
			Name:      "backend_failures_total",
			Help:      "Reviewer backend calls that produced no usable result",
		}, []string{"backend", "kind"}),
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mozart",
			Name:      "sessions_total",
			Help:      "Review sessions by mode and terminal status",
		}, []string{"mode", "status"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mozart",
			Name:      "inflight_backends",
			Help:      "Reviewer backend calls currently in flight",
		}),
		judgeCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mozart",
			Name:      "judge_calls_total",
			Help:      "Judge backend calls by status",
		}, []string{"status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mozart",
			Name:      "retries_total",
			Help:      "Retry attempts made by RetryingBackend",
		}, []string{"backend", "kind"}),
		clamped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mozart",
			Name:      "clamped_scores_total",
			Help:      "Out-of-range reviewer and judge scores clamped to [0,100]",
		}, []string{"backend"}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordBackendLatency observes one reviewer call.
func (pm *PrometheusMetrics) RecordBackendLatency(backend, provider string, latency time.Duration, status Status) {
	if !pm.on() {
		return
	}
	pm.backendLatency.WithLabelValues(backend, provider, status.String()).Observe(float64(latency.Milliseconds()))
}

// IncrementBackendFailures counts one failed reviewer call.
func (pm *PrometheusMetrics) IncrementBackendFailures(backend string, kind FailureKind) {
	if !pm.on() {
		return
	}
	pm.backendFailures.WithLabelValues(backend, kind.String()).Inc()
}

// IncrementSessions counts one finished session.
func (pm *PrometheusMetrics) IncrementSessions(mode Mode, status string) {
	if !pm.on() {
		return
	}
	pm.sessions.WithLabelValues(mode.String(), status).Inc()
}

// BackendStarted increments the in-flight gauge.
func (pm *PrometheusMetrics) BackendStarted() {
	if !pm.on() {
		return
	}
	pm.inflight.Inc()
}

// BackendFinished decrements the in-flight gauge.
func (pm *PrometheusMetrics) BackendFinished() {
	if !pm.on() {
		return
	}
	pm.inflight.Dec()
}

// IncrementJudgeCalls counts one judge call ("ok" or "failed").
func (pm *PrometheusMetrics) IncrementJudgeCalls(status string) {
	if !pm.on() {
		return
	}
	pm.judgeCalls.WithLabelValues(status).Inc()
}

// IncrementRetries counts one retry attempt.
func (pm *PrometheusMetrics) IncrementRetries(backend string, kind FailureKind) {
	if !pm.on() {
		return
	}
	pm.retries.WithLabelValues(backend, kind.String()).Inc()
}

// IncrementClamped counts one clamped score.
func (pm *PrometheusMetrics) IncrementClamped(backend string) {
	if !pm.on() {
		return
	}
	pm.clamped.WithLabelValues(backend).Inc()
}

// Disable temporarily disables metric recording.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset zeroes the in-flight gauge. Counters and histograms are cumulative
// and are left alone.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflight.Set(0)
}
