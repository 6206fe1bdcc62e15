// Package metrics exposes Prometheus collectors for the link pipeline.
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
	linksClassifiedTotal       *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchRetriesTotal          prometheus.Counter
	cacheHitsTotal             *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	portalLinksDiscoveredTotal prometheus.Counter
	batchesTotal               *prometheus.CounterVec
	activeFetches              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		linksClassifiedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkharvest_links_classified_total",
				Help: "Total links classified, labeled by category and tier.",
			},
			[]string{"category", "tier"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkharvest_fetches_total",
				Help: "Total fetch dispositions, labeled by method and status.",
			},
			[]string{"method", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkharvest_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkharvest_fetch_retries_total",
				Help: "Total fetch attempts beyond the first.",
			},
		)

		cacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkharvest_cache_hits_total",
				Help: "Cache hits, labeled by dedup layer (url or content).",
			},
			[]string{"layer"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkharvest_rate_limit_delays_seconds",
				Help:    "Histogram of politeness and slot wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		portalLinksDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkharvest_portal_links_discovered_total",
				Help: "Links discovered inside portal pages.",
			},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkharvest_batches_total",
				Help: "Total batches processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkharvest_active_fetches",
				Help: "Number of fetch tasks currently in flight.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveClassification counts one classified link.
func ObserveClassification(category string, tier int) {
	linksClassifiedTotal.WithLabelValues(category, strconv.Itoa(tier)).Inc()
}

// ObserveFetch records a terminal fetch disposition.
func ObserveFetch(method, status string, duration time.Duration) {
	fetchesTotal.WithLabelValues(method, status).Inc()
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
	}
}

// ObserveRetry counts one retried attempt.
func ObserveRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveCacheHit counts a hit on the given dedup layer.
func ObserveCacheHit(layer string) {
	cacheHitsTotal.WithLabelValues(layer).Inc()
}

// ObserveRateLimitDelay records the duration of a governor wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObservePortalLinks counts links discovered during a portal pass.
func ObservePortalLinks(n int) {
	if n > 0 {
		portalLinksDiscoveredTotal.Add(float64(n))
	}
}

// ObserveBatch counts a completed batch by outcome.
func ObserveBatch(outcome string) {
	batchesTotal.WithLabelValues(outcome).Inc()
}

// IncActiveFetches increments the in-flight fetch gauge.
func IncActiveFetches() {
	activeFetches.Inc()
}

// DecActiveFetches decrements the in-flight fetch gauge.
func DecActiveFetches() {
	activeFetches.Dec()
}
