// Package metrics exposes Prometheus collectors for the crawl service.
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
	pagesTotal            *prometheus.CounterVec
	fetchErrorsTotal      *prometheus.CounterVec
	duplicatesTotal       prometheus.Counter
	storeRetriesTotal     prometheus.Counter
	frontierDepth         prometheus.Gauge
	activeWorkers         prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDurSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webharvest_pages_total",
				Help: "Total number of pages processed, labeled by outcome (fetched, duplicate, failed).",
			},
			[]string{"outcome"},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webharvest_fetch_errors_total",
				Help: "Total number of fetch failures, labeled by error kind.",
			},
			[]string{"kind"},
		)

		duplicatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webharvest_duplicates_total",
				Help: "Total number of pages whose content duplicated an existing primary.",
			},
		)

		storeRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webharvest_store_retries_total",
				Help: "Total number of locally retried store writes.",
			},
		)

		frontierDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webharvest_frontier_depth",
				Help: "Number of pending URLs in the frontier.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webharvest_active_workers",
				Help: "Number of workers currently running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webharvest_http_requests_total",
				Help: "Total number of API requests, labeled by method, route, and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webharvest_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)
	})
}

// ObservePage records a processed page by outcome
func ObservePage(outcome string) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchError records a fetch failure by error kind
func ObserveFetchError(kind string) {
	if fetchErrorsTotal == nil {
		return
	}
	fetchErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveDuplicate records a content-duplicate page
func ObserveDuplicate() {
	if duplicatesTotal == nil {
		return
	}
	duplicatesTotal.Inc()
}

// ObserveStoreRetry records a locally retried store write
func ObserveStoreRetry() {
	if storeRetriesTotal == nil {
		return
	}
	storeRetriesTotal.Inc()
}

// SetFrontierDepth updates the pending-frontier gauge
func SetFrontierDepth(n int) {
	if frontierDepth == nil {
		return
	}
	frontierDepth.Set(float64(n))
}

// SetActiveWorkers updates the running-workers gauge
func SetActiveWorkers(n int) {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Set(float64(n))
}

// ObserveHTTPRequest records one API request
func ObserveHTTPRequest(method, route, code string, elapsed time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDurSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
