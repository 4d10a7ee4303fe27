// Package metrics exposes Prometheus collectors for the refresh service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal                *prometheus.CounterVec
	countriesProcessedTotal  *prometheus.CounterVec
	retryRoundsTotal         prometheus.Counter
	activeRuns               prometheus.Gauge
	generateDurationSeconds  prometheus.Histogram
	sourceChangesTotal       prometheus.Counter
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDurationSecs  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "munireg_runs_total",
				Help: "Total refresh jobs, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)

		countriesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "munireg_countries_processed_total",
				Help: "Per-country processing attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		retryRoundsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "munireg_retry_rounds_total",
				Help: "Total retry rounds executed across all jobs.",
			},
		)

		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "munireg_active_runs",
				Help: "Number of refresh jobs currently running (0 or 1).",
			},
		)

		generateDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "munireg_generate_duration_seconds",
				Help:    "Latency of summary generator calls.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		sourceChangesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "munireg_source_changes_total",
				Help: "Regulator source pages whose content digest changed.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the run counter for the given kind and result.
func ObserveRun(kind, result string) {
	runsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveCountry increments the per-country attempt counter.
func ObserveCountry(outcome string) {
	countriesProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetryRound increments the retry round counter.
func ObserveRetryRound() {
	retryRoundsTotal.Inc()
}

// IncActiveRuns increments the active run gauge.
func IncActiveRuns() {
	activeRuns.Inc()
}

// DecActiveRuns decrements the active run gauge.
func DecActiveRuns() {
	activeRuns.Dec()
}

// ObserveGenerateDuration records the latency of one generator call.
func ObserveGenerateDuration(d time.Duration) {
	generateDurationSeconds.Observe(d.Seconds())
}

// ObserveSourceChange increments the changed-source counter.
func ObserveSourceChange() {
	sourceChangesTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, httpCode(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
