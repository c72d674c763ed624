// Package telemetry emits metrics and events for planning requests.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fantastic-router/fantastic-router/planning"
)

// Metrics is a planning.Observer that records Prometheus metrics for every
// completed request.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  prometheus.Histogram
	cacheHits *prometheus.CounterVec
	llmCalls  prometheus.Counter
}

// NewMetrics creates and registers the planner metrics on reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fantastic_router_requests_total",
			Help: "Planning requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fantastic_router_request_duration_seconds",
			Help:    "End-to-end planning latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 3, 5, 10, 30},
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fantastic_router_cache_hits_total",
			Help: "Cache hits by cache type.",
		}, []string{"cache"}),
		llmCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fantastic_router_llm_calls_total",
			Help: "Language model calls issued by the planner.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.cacheHits, m.llmCalls)
	return m
}

// PlanCompleted implements planning.Observer.
func (m *Metrics) PlanCompleted(_ context.Context, _ *planning.PlanRequest, result *planning.PlanResult) {
	outcome := "success"
	if !result.Success {
		outcome = string(result.ErrorKind)
		if outcome == "" {
			outcome = "error"
		}
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(float64(result.Performance.DurationMs) / 1000)
	m.llmCalls.Add(float64(result.Performance.LLMCalls))

	if result.CacheHit {
		m.cacheHits.WithLabelValues("request").Inc()
	} else if result.CacheType != "" {
		m.cacheHits.WithLabelValues(result.CacheType).Inc()
	}
}
