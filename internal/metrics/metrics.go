// Package metrics provides Prometheus metrics collection for the embedding
// service. It tracks request counts, latencies, encode throughput, model
// lifecycle events, and cache effectiveness.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "embedgate"

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0,
}

var (
	// EmbeddingRequestsTotal counts embedding requests by model and status.
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	// EmbeddingLatency tracks end-to-end embedding request latency.
	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_latency_seconds",
			Help:      "Embedding request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"model"},
	)

	// TextsEncoded counts input texts encoded per model.
	TextsEncoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "texts_encoded_total",
			Help:      "Total number of texts encoded",
		},
		[]string{"model"},
	)

	// TextsTruncated counts inputs truncated to the maximum sequence length.
	TextsTruncated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "texts_truncated_total",
			Help:      "Total number of texts truncated before encoding",
		},
		[]string{"model"},
	)

	// ModelLoadsTotal counts model load attempts by outcome.
	ModelLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Total number of model load attempts",
		},
		[]string{"model", "outcome"}, // outcome: success, failure
	)

	// ModelLoadDuration tracks model load duration.
	ModelLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Model load duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"model"},
	)

	// ServiceState exposes the lifecycle state machine
	// (0=uninitialized, 1=loading, 2=ready, 3=error).
	ServiceState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_state",
			Help:      "Service state (0=uninitialized, 1=loading, 2=ready, 3=error)",
		},
	)

	// CacheLookups counts embedding cache lookups by result.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total embedding cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// HTTPRequestsTotal counts HTTP requests by route, method, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks HTTP handler latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"route", "method"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)
)

// RecordEmbedding records metrics for one embedding request.
func RecordEmbedding(model string, statusCode, texts, truncated int, latency time.Duration) {
	status := strconv.Itoa(statusCode)
	EmbeddingRequestsTotal.WithLabelValues(model, status).Inc()
	EmbeddingLatency.WithLabelValues(model).Observe(latency.Seconds())
	if texts > 0 {
		TextsEncoded.WithLabelValues(model).Add(float64(texts))
	}
	if truncated > 0 {
		TextsTruncated.WithLabelValues(model).Add(float64(truncated))
	}
}

// RecordModelLoad records a load attempt.
func RecordModelLoad(model string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ModelLoadsTotal.WithLabelValues(model, outcome).Inc()
	if err == nil {
		ModelLoadDuration.WithLabelValues(model).Observe(duration.Seconds())
	}
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
	} else {
		CacheLookups.WithLabelValues("miss").Inc()
	}
}
