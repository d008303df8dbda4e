// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package config

import "time"

// Config holds all application configuration loaded from defaults, an
// optional YAML file, and environment variables, in that precedence order.
//
// Configuration Categories:
//
//  1. Device fleet: DeviceClient (per-device HTTP behavior), Poller (tier
//     cadence and backoff), Detector (dedup window sizing)
//  2. Event plane: EventBus (ring capacity, catch-up limits, WebSocket
//     resource caps), NATS (JetStream ingestion transport)
//  3. Preview: Preview (cache directory, sweep cadence, fetch backoff)
//  4. Storage: Database (DuckDB path and memory limits)
//  5. Surface: Server (HTTP bind address), Security (bearer token
//     validation, rate limiting, CORS)
//  6. Observability: Logging
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	DeviceClient DeviceClientConfig `koanf:"device_client"`
	Poller       PollerConfig       `koanf:"poller"`
	Detector     DetectorConfig     `koanf:"detector"`
	EventBus     EventBusConfig     `koanf:"event_bus"`
	NATS         NATSConfig         `koanf:"nats"`
	WAL          WALConfig          `koanf:"wal"`
	Preview      PreviewConfig      `koanf:"preview"`
	Database     DatabaseConfig     `koanf:"database"`
	Server       ServerConfig       `koanf:"server"`
	Security     SecurityConfig     `koanf:"security"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// DeviceClientConfig governs the Device Client's HTTP transport and
// per-device circuit breaker.
type DeviceClientConfig struct {
	RequestTimeout      time.Duration `koanf:"request_timeout"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"`

	// Circuit breaker trips once MinRequests have been seen in the
	// rolling window and the failure ratio exceeds FailureRatio.
	BreakerMinRequests   uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio  float64       `koanf:"breaker_failure_ratio"`
	BreakerOpenTimeout   time.Duration `koanf:"breaker_open_timeout"`
	BreakerCountInterval time.Duration `koanf:"breaker_count_interval"`
}

// PollerConfig governs the Tiered Poller's tick cadence and per-device
// backoff. The tier intervals are unrelated to suture's own crash-restart
// backoff on the device-level service.
type PollerConfig struct {
	FastInterval   time.Duration `koanf:"fast_interval"`
	MediumInterval time.Duration `koanf:"medium_interval"`
	SlowInterval   time.Duration `koanf:"slow_interval"`

	BackoffInitial    time.Duration `koanf:"backoff_initial"`
	BackoffMax        time.Duration `koanf:"backoff_max"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`

	// ErrorThreshold is the number of consecutive fast-tier failures
	// before the fast tier switches from its normal interval to
	// exponential backoff. Medium/slow tier failures are logged but
	// never trigger backoff.
	ErrorThreshold int `koanf:"error_threshold"`

	// ReconciliationInterval is how often the poller reloads the device
	// roster from the store, picking up additions/removals.
	ReconciliationInterval time.Duration `koanf:"reconciliation_interval"`
}

// DetectorConfig sizes the Change Detector's seen-hash dedup window.
type DetectorConfig struct {
	DedupWindowCapacity int           `koanf:"dedup_window_capacity"`
	DedupWindowTTL      time.Duration `koanf:"dedup_window_ttl"`
}

// EventBusConfig sizes the per-subscription-key ring buffer, catch-up
// query limits, and WebSocket connection resource caps.
type EventBusConfig struct {
	RingCapacityPerKey int           `koanf:"ring_capacity_per_key"`
	RingTTL            time.Duration `koanf:"ring_ttl"`

	CatchUpDefaultLimit int `koanf:"catch_up_default_limit"`
	CatchUpMaxLimit     int `koanf:"catch_up_max_limit"`

	MaxConnections            int           `koanf:"max_connections"`
	MaxConnectionsPerIP       int           `koanf:"max_connections_per_ip"`
	MaxSubscriptionsPerClient int           `koanf:"max_subscriptions_per_client"`
	SendQueueSize             int           `koanf:"send_queue_size"`
	MaxMessageSize            int64         `koanf:"max_message_size"`
	PongWait                  time.Duration `koanf:"pong_wait"`
	PingPeriod                time.Duration `koanf:"ping_period"`
	WriteWait                 time.Duration `koanf:"write_wait"`
}

// NATSConfig configures the embedded JetStream server used as the
// ingestion transport between the Poller and the Event Store.
type NATSConfig struct {
	URL                 string        `koanf:"url"`
	EmbeddedServer      bool          `koanf:"embedded_server"`
	StoreDir            string        `koanf:"store_dir"`
	MaxMemory           int64         `koanf:"max_memory"`
	MaxStore            int64         `koanf:"max_store"`
	StreamRetentionDays int           `koanf:"stream_retention_days"`
	DurableName         string        `koanf:"durable_name"`
	QueueGroup          string        `koanf:"queue_group"`
	PublishTimeout      time.Duration `koanf:"publish_timeout"`
}

// WALConfig configures the BadgerDB-backed write-ahead log that sits
// in front of the ingestion transport, so an ingested event is
// durable before it is ever handed to NATS.
type WALConfig struct {
	Path          string        `koanf:"path"`
	SyncWrites    bool          `koanf:"sync_writes"`
	RetryInterval time.Duration `koanf:"retry_interval"`
}

// PreviewConfig governs the Preview Image Service's on-disk cache and
// per-target fetch backoff.
type PreviewConfig struct {
	CacheDir      string        `koanf:"cache_dir"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxAge        time.Duration `koanf:"max_age"`

	BackoffInitial    time.Duration `koanf:"backoff_initial"`
	BackoffMax        time.Duration `koanf:"backoff_max"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// DatabaseConfig configures the DuckDB-backed store adapter.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// ServerConfig configures the admin/ingest/ws HTTP surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// SecurityConfig configures bearer-token validation, CORS, and rate
// limiting on the HTTP surface. This core validates tokens; it never
// issues them.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

// LoggingConfig configures the zerolog-backed global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether Environment is set to "production".
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
