// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide registry the collectors below live in.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TurnsTotal,
		StageDuration,
		Sessions,
		SessionsEvicted,
		RateLimitWaitSeconds,
		HTTPRequests,
	)
}

// TurnsTotal counts pipeline turns by mode and outcome.
var TurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "medbot_turns_total",
		Help: "Pipeline turns by mode and status.",
	},
	[]string{"mode", "status"}, // status: ok | failed
)

// StageDuration measures each pipeline stage.
var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "medbot_stage_duration_seconds",
		Help:    "Duration of pipeline stages.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"stage"}, // embed | retrieve | condense | generate
)

// Sessions tracks the number of sessions held in memory.
var Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "medbot_sessions",
	Help: "Sessions currently held in the memory registry.",
})

// SessionsEvicted counts sessions dropped by the registry bound or TTL.
var SessionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "medbot_sessions_evicted_total",
	Help: "Sessions removed from the memory registry.",
})

// RateLimitWaitSeconds records time spent waiting on the model rate limiter.
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "medbot_llm_rate_limit_wait_seconds",
		Help:    "Time spent waiting for model rate limit permits.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"model"},
)

// HTTPRequests counts transport requests by route and status code.
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "medbot_http_requests_total",
		Help: "HTTP requests by route and status code.",
	},
	[]string{"route", "code"},
)

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
