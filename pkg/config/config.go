package config

import "time"

// Config is the root configuration structure for Aegis.
// It contains all configuration sections for the admin server, upstream
// endpoints, resilience mechanisms, telemetry, and the call journal.
type Config struct {
	// Server contains admin HTTP server configuration including listen
	// address and timeouts.
	Server ServerConfig `yaml:"server"`

	// Endpoints contains configuration for all upstream completion
	// endpoints. Keys are endpoint names (e.g., "openai", "anthropic").
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`

	// Telemetry contains configuration for observability including logging
	// and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Journal contains configuration for the durable call outcome journal.
	Journal JournalConfig `yaml:"journal"`
}

// ServerConfig contains configuration for the admin HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the admin server.
	// Format: "host:port".
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are abandoned.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EndpointConfig contains configuration for a single upstream endpoint.
type EndpointConfig struct {
	// BaseURL is the base URL for the upstream's API.
	// Example: "https://api.openai.com"
	BaseURL string `yaml:"base_url"`

	// CompletionPath is the path completions are posted to.
	// Default: "/v1/completions"
	CompletionPath string `yaml:"completion_path"`

	// HealthPath is an optional dedicated health probe path. When empty,
	// probes go to CompletionPath.
	HealthPath string `yaml:"health_path"`

	// APIKey is the authentication credential for the upstream.
	// This should typically be loaded from an environment variable.
	APIKey string `yaml:"api_key"`

	// Timeout is the default per-call deadline for this endpoint.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// Breaker configures the endpoint's circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`

	// Admission configures the endpoint's concurrency limiter and queue.
	Admission AdmissionConfig `yaml:"admission"`

	// Coalescing configures request deduplication.
	Coalescing CoalescingConfig `yaml:"coalescing"`

	// HealthInterval is how often the background monitor probes the
	// endpoint. Zero disables background probing.
	// Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`
}

// BreakerConfig contains circuit breaker settings for an endpoint.
type BreakerConfig struct {
	// FailureRateThreshold is the failure ratio at or above which the
	// breaker opens, evaluated only once MinimumCalls is reached.
	// Range (0, 1].
	// Default: 0.5
	FailureRateThreshold float64 `yaml:"failure_rate_threshold"`

	// MinimumCalls is the call volume required in the window before the
	// failure rate is evaluated at all.
	// Default: 10
	MinimumCalls int `yaml:"minimum_calls"`

	// Window is the span of the rolling window used to compute the
	// failure rate.
	// Default: 10s
	Window time.Duration `yaml:"window"`

	// Buckets is the number of sub-intervals the window is divided into.
	// Default: 10
	Buckets int `yaml:"buckets"`

	// Cooldown is how long the breaker stays open before allowing a
	// single probe call.
	// Default: 30s
	Cooldown time.Duration `yaml:"cooldown"`
}

// AdmissionConfig contains concurrency limiter settings for an endpoint.
type AdmissionConfig struct {
	// Capacity is the maximum number of concurrently executing calls.
	// Default: 8
	Capacity int `yaml:"capacity"`

	// MaxQueue is the maximum number of callers allowed to wait for
	// admission across both lanes.
	// Default: 64
	MaxQueue int `yaml:"max_queue"`

	// QueueTimeout is how long a caller may wait for admission before
	// failing.
	// Default: 10s
	QueueTimeout time.Duration `yaml:"queue_timeout"`
}

// CoalescingConfig contains request deduplication settings.
type CoalescingConfig struct {
	// GraceWindow is how long a settled execution lingers so that
	// immediately following identical submissions can reuse its outcome.
	// Default: 50ms
	GraceWindow time.Duration `yaml:"grace_window"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format ("json", "text").
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path metrics are served on.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	// Default: "aegis"
	Namespace string `yaml:"namespace"`
}

// JournalConfig contains call journal configuration.
type JournalConfig struct {
	// Enabled controls whether call outcomes are persisted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file path.
	// Default: "data/journal.db"
	Path string `yaml:"path"`

	// RetentionSchedule is a cron expression for the cleanup sweep.
	// Default: "17 3 * * *"
	RetentionSchedule string `yaml:"retention_schedule"`

	// RetentionMaxAge is how long outcomes are kept.
	// Default: 168h (7 days)
	RetentionMaxAge time.Duration `yaml:"retention_max_age"`
}
