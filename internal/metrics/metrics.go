package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service metrics exposed on /metrics.
var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentrag_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incidentrag_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"route"},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentrag_llm_requests_total",
			Help: "Total number of chat completion requests",
		},
		[]string{"model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incidentrag_llm_request_duration_seconds",
			Help:    "Chat completion duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"model"},
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentrag_token_refresh_total",
			Help: "OAuth token exchanges by outcome",
		},
		[]string{"status"},
	)

	// Retrieval metrics
	RetrievalResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "incidentrag_retrieval_results",
			Help:    "Number of solutions returned per retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentrag_fallback_total",
			Help: "Fallback retrieval rounds by outcome",
		},
		[]string{"outcome"}, // replaced, no_candidates
	)

	DecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incidentrag_decode_failures_total",
			Help: "Model responses that were not a JSON object and were kept as text",
		},
	)

	// Ingestion metrics
	IngestedEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentrag_ingested_entries_total",
			Help: "Knowledge entries processed by ingestion",
		},
		[]string{"result"}, // indexed, skipped, failed
	)

	EmbeddingInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "incidentrag_embedding_in_flight",
			Help: "Embedding calls currently executing",
		},
	)
)
