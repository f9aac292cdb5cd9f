// Package metrics wires the council orchestrator's observability callbacks
// into Prometheus counters, histograms, and gauges.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements council.MetricsRecorder on top of a Prometheus registry.
type Metrics struct {
	activeSessions   prometheus.Gauge
	modelRequests    *prometheus.CounterVec
	modelDuration    *prometheus.HistogramVec
	modelTokens      *prometheus.CounterVec
	modelCost        *prometheus.CounterVec
	roundsCompleted  *prometheus.CounterVec
	rateLimitHits    *prometheus.CounterVec
	retryAttempts    *prometheus.CounterVec
}

// NewMetrics registers the council metric families against registry and
// returns a ready-to-use Metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "council_active_sessions",
			Help: "Current number of in-flight council sessions.",
		}),
		modelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_model_requests_total",
			Help: "Total backend requests by model and outcome status.",
		}, []string{"model", "status"}),
		modelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "council_model_request_duration_seconds",
			Help:    "Backend request latency by model.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		modelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_model_tokens_total",
			Help: "Total tokens consumed by model and direction (input/output).",
		}, []string{"model", "direction"}),
		modelCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_model_cost_usd_total",
			Help: "Total estimated USD cost by model.",
		}, []string{"model"}),
		roundsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_rounds_completed_total",
			Help: "Total consensus rounds completed, labeled by round number.",
		}, []string{"round"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_rate_limit_hits_total",
			Help: "Total times a per-model rate limiter delayed a request.",
		}, []string{"model"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "council_retry_attempts_total",
			Help: "Total backend retry attempts by model.",
		}, []string{"model"}),
	}

	registry.MustRegister(
		m.activeSessions,
		m.modelRequests,
		m.modelDuration,
		m.modelTokens,
		m.modelCost,
		m.roundsCompleted,
		m.rateLimitHits,
		m.retryAttempts,
	)

	return m
}

func (m *Metrics) IncrementActiveSessions() { m.activeSessions.Inc() }
func (m *Metrics) DecrementActiveSessions() { m.activeSessions.Dec() }

func (m *Metrics) RecordModelRequest(model, status string) {
	m.modelRequests.WithLabelValues(model, status).Inc()
}

func (m *Metrics) RecordModelDuration(model string, seconds float64) {
	m.modelDuration.WithLabelValues(model).Observe(seconds)
}

func (m *Metrics) RecordModelTokens(model, direction string, count int) {
	if count <= 0 {
		return
	}
	m.modelTokens.WithLabelValues(model, direction).Add(float64(count))
}

func (m *Metrics) RecordModelCost(model string, cost float64) {
	m.modelCost.WithLabelValues(model).Add(cost)
}

func (m *Metrics) RecordRoundCompleted(round int) {
	m.roundsCompleted.WithLabelValues(strconv.Itoa(round)).Inc()
}

// RecordRateLimitHit notes that a request to model was delayed by its rate
// limiter. Not on the council.MetricsRecorder interface, and nothing in this
// module calls it, so the counter only moves when a caller records hits
// directly.
func (m *Metrics) RecordRateLimitHit(model string) {
	m.rateLimitHits.WithLabelValues(model).Inc()
}

// RecordRetryAttempt notes a retry attempt against model.
func (m *Metrics) RecordRetryAttempt(model string) {
	m.retryAttempts.WithLabelValues(model).Inc()
}
