// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterStudiesTotal          *prometheus.CounterVec
	harvesterFetchesTotal          *prometheus.CounterVec
	harvesterFetchDurationSeconds  *prometheus.HistogramVec
	harvesterFieldsNulledTotal     *prometheus.CounterVec
	harvesterActiveWorkers         prometheus.Gauge
	harvesterRateLimitDelaySeconds prometheus.Histogram
	harvesterArchiveWritesTotal    *prometheus.CounterVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterStudiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_studies_total",
				Help: "Total number of studies processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvesterFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Total number of accession fetches, labeled by accession kind and status.",
			},
			[]string{"kind", "status"},
		)

		harvesterFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of accession fetch latencies, labeled by accession kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		harvesterFieldsNulledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fields_nulled_total",
				Help: "Total number of record fields stored as null after a failed coercion.",
			},
			[]string{"field"},
		)

		harvesterActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently ingesting a study.",
			},
		)

		harvesterRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of politeness limiter wait durations.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		harvesterArchiveWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_archive_writes_total",
				Help: "Total number of raw document archive writes, labeled by result.",
			},
			[]string{"result"},
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

// AccessionKind returns a low-cardinality label for an accession, e.g. "GSE"
// for "GSE123". Anything without a three-letter prefix is "unknown".
func AccessionKind(key string) string {
	prefix := strings.ToUpper(strings.TrimRight(key, "0123456789"))
	switch prefix {
	case "GSE", "GSM", "GPL", "GDS":
		return prefix
	default:
		return "unknown"
	}
}

// ObserveStudy increments the study counter for the given outcome.
func ObserveStudy(outcome string) {
	Init()
	harvesterStudiesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one accession fetch.
func ObserveFetch(key string, statusCode int, duration time.Duration) {
	Init()
	kind := AccessionKind(key)
	harvesterFetchesTotal.WithLabelValues(kind, strconv.Itoa(statusCode)).Inc()
	harvesterFetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveFieldNulled counts a field dropped to null during coercion.
func ObserveFieldNulled(field string) {
	Init()
	harvesterFieldsNulledTotal.WithLabelValues(field).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	harvesterActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	harvesterActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	harvesterRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveArchive counts one archive write.
func ObserveArchive(ok bool) {
	Init()
	result := "ok"
	if !ok {
		result = "error"
	}
	harvesterArchiveWritesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
