// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared by callers.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusDuplicate = "duplicate"
)

var (
	indexPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardcrawler_index_pages_total",
			Help: "Total number of index pages processed, labeled by status.",
		},
		[]string{"status"},
	)

	cardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardcrawler_cards_total",
			Help: "Total number of detail links handled, labeled by status.",
		},
		[]string{"status"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardcrawler_fetch_duration_seconds",
			Help:    "Histogram of document fetch latencies, labeled by strategy.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"strategy"},
	)

	persistErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardcrawler_persist_errors_total",
			Help: "Total number of persistence failures, labeled by backend and operation.",
		},
		[]string{"backend", "op"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardcrawler_active_workers",
			Help: "Number of workers currently processing an index page.",
		},
	)

	pacingDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardcrawler_pacing_delay_seconds",
			Help:    "Histogram of pacing waits, labeled by pacer.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"pacer"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardcrawler_runs_total",
			Help: "Total number of crawl runs, labeled by status.",
		},
		[]string{"status"},
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
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveIndexPage counts one processed index page.
func ObserveIndexPage(status string) {
	indexPagesTotal.WithLabelValues(status).Inc()
}

// ObserveCard counts one detail link outcome.
func ObserveCard(status string) {
	cardsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records how long a fetch took.
func ObserveFetch(strategy string, duration time.Duration) {
	fetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObservePersistError counts a failed persistence call.
func ObservePersistError(backend, op string) {
	persistErrorsTotal.WithLabelValues(backend, op).Inc()
}

// ObserveRun counts a finished crawl run.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObservePacingDelay records the duration of a pacing wait.
func ObservePacingDelay(pacer string, duration time.Duration) {
	pacingDelaySeconds.WithLabelValues(pacer).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
