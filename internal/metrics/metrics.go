// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - Device client requests and circuit breaker state (component A)
// - Change detection throughput (component B)
// - Store query performance (DuckDB)
// - Tiered poller tick duration and backoff (component C)
// - Event bus fan-out, ring buffer, and ingestion transport (component D)
// - Preview image fetch/cache behavior (component E)
// - WebSocket connections and API endpoint latency

var (
	// Device Client Metrics (component A)
	DeviceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "device_request_duration_seconds",
			Help:    "Duration of HTTP requests to device endpoints",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	DeviceRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_request_errors_total",
			Help: "Total number of device request errors by classification",
		},
		[]string{"endpoint", "error_kind"}, // error_kind: transient, dns, unauthorized, notFound, serverError, schema, other
	)

	DeviceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_requests_total",
			Help: "Total number of HTTP requests issued to devices",
		},
		[]string{"endpoint", "status_code"},
	)

	// Circuit Breaker Metrics (sony/gobreaker, one breaker per device host)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"device"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through a device circuit breaker",
		},
		[]string{"device", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"device", "from_state", "to_state"},
	)

	// Change Detector Metrics (component B)
	DetectorComparisons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_comparisons_total",
			Help: "Total number of change detector comparisons by data type",
		},
		[]string{"data_type", "changed"}, // changed: true, false
	)

	DetectorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detector_duration_seconds",
			Help:    "Duration of a single change detection comparison",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// Store Metrics (DuckDB)
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total number of store query errors",
		},
		[]string{"operation", "table"},
	)

	StoreConnectionPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_connection_pool_size",
			Help: "Current number of store connections in use",
		},
	)

	// Tiered Poller Metrics (component C)
	PollerTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poller_tick_duration_seconds",
			Help:    "Duration of a single poller tick, by tier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"}, // fast, medium, slow
	)

	PollerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_ticks_total",
			Help: "Total number of poller ticks executed, by tier and outcome",
		},
		[]string{"tier", "outcome"}, // outcome: success, error
	)

	PollerBackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poller_backoff_seconds",
			Help: "Current backoff duration for a device's poller, in seconds",
		},
		[]string{"device"},
	)

	PollerDevicesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poller_devices_active",
			Help: "Current number of devices with an active poller service",
		},
	)

	// Event Bus Metrics (component D)
	EventBusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_published_total",
			Help: "Total number of events published to the event bus",
		},
		[]string{"event_type"},
	)

	EventBusFannedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_fanned_out_total",
			Help: "Total number of events delivered to WebSocket subscribers",
		},
		[]string{"event_type"},
	)

	EventBusRingSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventbus_ring_entries",
			Help: "Current number of entries held in a subscription key's catch-up ring",
		},
		[]string{"subscription_key"},
	)

	EventBusRingEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_ring_evictions_total",
			Help: "Total number of entries evicted from a catch-up ring on overflow",
		},
		[]string{"subscription_key"},
	)

	// Ingestion Transport Metrics (watermill + embedded NATS JetStream)
	IngestMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_messages_consumed_total",
			Help: "Total number of messages consumed from the ingestion transport",
		},
	)

	IngestMessagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_messages_processed_total",
			Help: "Total number of ingestion messages successfully processed",
		},
	)

	IngestMessagesParseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_messages_parse_failed_total",
			Help: "Total number of ingestion messages that failed to parse",
		},
	)

	IngestProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_seconds",
			Help:    "Duration of ingestion message processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestConsumerLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_consumer_lag",
			Help: "Number of pending messages on the ingestion consumer",
		},
	)

	// Write-Ahead Log Metrics (BadgerDB durability layer in front of the
	// ingestion transport)
	WALPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wal_pending_entries",
			Help: "Current number of WAL entries awaiting confirmed publish",
		},
	)

	WALWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wal_writes_total",
			Help: "Total number of events durably written to the WAL before publish",
		},
	)

	WALConfirms = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wal_confirms_total",
			Help: "Total number of WAL entries confirmed after a successful publish",
		},
	)

	WALRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wal_retries_total",
			Help: "Total number of WAL retry-loop republish attempts",
		},
		[]string{"result"}, // success, error
	)

	// Preview Image Service Metrics (component E)
	PreviewFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preview_fetch_duration_seconds",
			Help:    "Duration of a preview image fetch from a device",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // success, error
	)

	PreviewCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_cache_hits_total",
			Help: "Total number of preview image cache hits",
		},
	)

	PreviewCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_cache_misses_total",
			Help: "Total number of preview image cache misses",
		},
	)

	PreviewActiveTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "preview_active_targets",
			Help: "Current number of preview targets with at least one active subscriber",
		},
	)

	PreviewSweepEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_sweep_evictions_total",
			Help: "Total number of preview targets evicted by the periodic sweep",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDeviceRequest records a device HTTP request metric.
func RecordDeviceRequest(endpoint, statusCode string, duration time.Duration, errKind string) {
	DeviceRequestsTotal.WithLabelValues(endpoint, statusCode).Inc()
	DeviceRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if errKind != "" {
		DeviceRequestErrors.WithLabelValues(endpoint, errKind).Inc()
	}
}

// RecordStoreQuery records a store query metric.
func RecordStoreQuery(operation, table string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordPollerTick records a single poller tick outcome for the given tier.
func RecordPollerTick(tier string, duration time.Duration, err error) {
	PollerTickDuration.WithLabelValues(tier).Observe(duration.Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	PollerTicksTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordDetectorComparison records a single change detector comparison.
func RecordDetectorComparison(dataType string, changed bool, duration time.Duration) {
	DetectorDuration.Observe(duration.Seconds())
	DetectorComparisons.WithLabelValues(dataType, boolLabel(changed)).Inc()
}

// RecordEventPublished records an event being published to the event bus.
func RecordEventPublished(eventType string) {
	EventBusPublished.WithLabelValues(eventType).Inc()
}

// RecordEventFannedOut records an event being delivered to WebSocket subscribers.
func RecordEventFannedOut(eventType string) {
	EventBusFannedOut.WithLabelValues(eventType).Inc()
}

// RecordIngestMessage records an ingestion transport message outcome.
func RecordIngestMessage(duration time.Duration, parseFailed bool) {
	IngestMessagesConsumed.Inc()
	IngestProcessingDuration.Observe(duration.Seconds())
	if parseFailed {
		IngestMessagesParseFailed.Inc()
		return
	}
	IngestMessagesProcessed.Inc()
}

// RecordPreviewFetch records a preview image fetch outcome.
func RecordPreviewFetch(duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	PreviewFetchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordWALWrite records a durable WAL write before publish.
func RecordWALWrite() {
	WALWrites.Inc()
}

// RecordWALConfirm records a WAL entry confirmed after successful publish.
func RecordWALConfirm() {
	WALConfirms.Inc()
}

// RecordWALRetry records a retry-loop republish attempt outcome.
func RecordWALRetry(err error) {
	if err != nil {
		WALRetries.WithLabelValues("error").Inc()
		return
	}
	WALRetries.WithLabelValues("success").Inc()
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
