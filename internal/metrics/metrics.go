// Package metrics exposes Prometheus collectors for the program crawler.
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
	crawlerPagesTotal                    *prometheus.CounterVec
	crawlerBytesTotal                    *prometheus.CounterVec
	httpRequestsTotal                    *prometheus.CounterVec
	httpRequestDurationSeconds           *prometheus.HistogramVec
	crawlerProbeTLSHandshakeTimeoutTotal prometheus.Counter
	crawlerTasksTotal                    *prometheus.CounterVec
	crawlerActiveWorkers                 prometheus.Gauge
	crawlerRateLimitDelaysSeconds        *prometheus.HistogramVec
	llmRequestsTotal                     *prometheus.CounterVec
	llmRequestDurationSeconds            *prometheus.HistogramVec
	refineRounds                         prometheus.Histogram
	refineFailuresTotal                  *prometheus.CounterVec
	searchRequestsTotal                  *prometheus.CounterVec
	weightCacheLookupsTotal              *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of program pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		crawlerProbeTLSHandshakeTimeoutTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_probe_tls_handshake_timeout_total",
				Help: "Total TLS handshake timeouts encountered while probing robots.txt.",
			},
		)

		crawlerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_tasks_total",
				Help: "Total number of crawl task outcomes, labeled by state.",
			},
			[]string{"state"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently running a pipeline.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		llmRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of language model requests, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		llmRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Histogram of language model request latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
			},
			[]string{"operation"},
		)

		refineRounds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "refine_rounds",
				Help:    "Validation rounds used per refinement loop.",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		)

		refineFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refine_failures_total",
				Help: "Refinement loop failures, labeled by code.",
			},
			[]string{"code"},
		)

		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_requests_total",
				Help: "Search requests, labeled by search type.",
			},
			[]string{"search_type"},
		)

		weightCacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_weight_cache_lookups_total",
				Help: "Weight cache lookups, labeled by result.",
			},
			[]string{"result"},
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

// ObserveCrawl increments the page fetch metrics.
func ObserveCrawl(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProbeTLSHandshakeTimeout increments the probe-specific handshake timeout counter.
func ObserveProbeTLSHandshakeTimeout() {
	Init()
	crawlerProbeTLSHandshakeTimeoutTotal.Inc()
}

// ObserveTask counts a task state transition reported by the orchestrator.
func ObserveTask(state string) {
	Init()
	crawlerTasksTotal.WithLabelValues(state).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveLLMRequest records one model call.
func ObserveLLMRequest(operation, outcome string, duration time.Duration) {
	Init()
	llmRequestsTotal.WithLabelValues(operation, outcome).Inc()
	llmRequestDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRefine records the rounds a refinement loop used and, when it
// failed, the failure code.
func ObserveRefine(rounds int, failureCode string) {
	Init()
	refineRounds.Observe(float64(rounds))
	if failureCode != "" {
		refineFailuresTotal.WithLabelValues(failureCode).Inc()
	}
}

// ObserveSearch counts a search request by type.
func ObserveSearch(searchType string) {
	Init()
	searchRequestsTotal.WithLabelValues(searchType).Inc()
}

// ObserveWeightCache counts a weight cache hit or miss.
func ObserveWeightCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	weightCacheLookupsTotal.WithLabelValues(result).Inc()
}
