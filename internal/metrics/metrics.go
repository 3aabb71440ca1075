// Package metrics exposes Prometheus collectors for the scraping service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	cacheHitsTotal             *prometheus.CounterVec
	listingsScrapedTotal       *prometheus.CounterVec
	listingsPersistedTotal     *prometheus.CounterVec
	persistFailuresTotal       *prometheus.CounterVec
	siteRunsTotal              *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_fetches_total",
				Help: "Total number of page fetches, labeled by host, mode, and outcome.",
			},
			[]string{"host", "mode", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscout_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies excluding politeness delay, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_fetch_bytes_total",
				Help: "Total number of markup bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		cacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_page_cache_hits_total",
				Help: "Total number of page cache hits, labeled by host.",
			},
			[]string{"host"},
		)

		listingsScrapedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_listings_scraped_total",
				Help: "Total number of listings emitted by adapters, labeled by site.",
			},
			[]string{"site"},
		)

		listingsPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_listings_persisted_total",
				Help: "Total number of listings written, labeled by site and action.",
			},
			[]string{"site", "action"},
		)

		persistFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_persist_failures_total",
				Help: "Total number of rolled back listing batches, labeled by site.",
			},
			[]string{"site"},
		)

		siteRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_site_runs_total",
				Help: "Total number of site scrapes, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobscout_active_workers",
				Help: "Number of workers currently scraping a site.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscout_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(rawURL, mode, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	host := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(host, mode, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveCacheHit counts a page served from the cache.
func ObserveCacheHit(rawURL string) {
	Init()
	cacheHitsTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveScraped counts listings emitted by a site's adapter.
func ObserveScraped(site string, count int) {
	Init()
	listingsScrapedTotal.WithLabelValues(site).Add(float64(count))
}

// ObservePersisted counts inserted and updated rows for a site.
func ObservePersisted(site string, inserted, updated int) {
	Init()
	listingsPersistedTotal.WithLabelValues(site, "inserted").Add(float64(inserted))
	listingsPersistedTotal.WithLabelValues(site, "updated").Add(float64(updated))
}

// ObservePersistFailure counts a rolled back batch.
func ObservePersistFailure(site string) {
	Init()
	persistFailuresTotal.WithLabelValues(site).Inc()
}

// ObserveSiteRun counts a finished site scrape with the given status.
func ObserveSiteRun(site, status string) {
	Init()
	siteRunsTotal.WithLabelValues(site, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
