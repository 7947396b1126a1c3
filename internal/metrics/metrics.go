// Package metrics exposes Prometheus collectors for the chatstash service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlOutcomesTotal         *prometheus.CounterVec
	fetchDurationSeconds       prometheus.Histogram
	activeFetchWorkers         prometheus.Gauge
	jobsearchCacheTotal        *prometheus.CounterVec
	jobsearchSourceFailures    *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstash_crawl_outcomes_total",
				Help: "Total per-URL crawl/preview outcomes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatstash_fetch_duration_seconds",
				Help:    "Histogram of single-URL fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		activeFetchWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatstash_active_fetch_workers",
				Help: "Number of pool workers currently fetching a URL.",
			},
		)

		jobsearchCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstash_jobsearch_cache_total",
				Help: "Aggregated job-search cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)

		jobsearchSourceFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstash_jobsearch_source_failures_total",
				Help: "Failed upstream job-search source calls, labeled by source.",
			},
			[]string{"source"},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlOutcome counts one per-URL outcome ("ok", "failed", "skipped",
// "dropped").
func ObserveCrawlOutcome(outcome string) {
	crawlOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records the latency of one fetch.
func ObserveFetchDuration(d time.Duration) {
	fetchDurationSeconds.Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeFetchWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeFetchWorkers.Dec()
}

// ObserveCacheLookup counts an aggregated-search cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	jobsearchCacheTotal.WithLabelValues(result).Inc()
}

// ObserveSourceFailure counts a failed upstream source call.
func ObserveSourceFailure(source string) {
	jobsearchSourceFailures.WithLabelValues(source).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
