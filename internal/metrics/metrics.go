package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldrouter_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Pipeline metrics
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_envelopes_total",
			Help: "Total number of envelopes handled by the routing pipeline",
		},
		[]string{"version", "outcome"}, // outcome: processed, discarded, retryable, dead_letter
	)

	EnvelopeProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldrouter_envelope_process_duration_seconds",
			Help:    "Time taken to process a single envelope end to end",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	TransformSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_transform_skipped_total",
			Help: "Observations a transformer declined to encode for a destination",
		},
		[]string{"destination_type"},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_dispatch_total",
			Help: "Total number of documents published towards destinations",
		},
		[]string{"destination_type", "status"}, // status: success, failed
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldrouter_dispatch_duration_seconds",
			Help:    "Time taken to publish a transformed document",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	DispatchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldrouter_dispatch_retries_total",
			Help: "Total number of broker publish retries",
		},
	)

	DeadLetterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_dead_letter_total",
			Help: "Total number of envelopes forwarded to the dead-letter channel",
		},
		[]string{"reason"},
	)

	// Reference cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_cache_hits_total",
			Help: "Reference cache hits by entity",
		},
		[]string{"entity"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_cache_misses_total",
			Help: "Reference cache misses by entity",
		},
		[]string{"entity"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_cache_errors_total",
			Help: "Cache backend errors tolerated as misses",
		},
		[]string{"entity"},
	)

	BlankDevicesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldrouter_blank_devices_total",
			Help: "Blank device placeholders synthesized on reference lookup failure",
		},
	)

	// Deduplication metrics
	DedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldrouter_dedup_hits_total",
			Help: "Envelopes short-circuited because the event was already processed",
		},
	)

	DedupMarkDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldrouter_dedup_mark_dropped_total",
			Help: "Mark-processed writes dropped after retries exhausted; weakens the dedup guarantee",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldrouter_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
