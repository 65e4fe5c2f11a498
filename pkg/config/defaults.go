package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// Endpoint defaults
	DefaultCompletionPath  = "/v1/completions"
	DefaultEndpointTimeout = 60 * time.Second
	DefaultHealthInterval  = 30 * time.Second

	// Breaker defaults
	DefaultFailureRateThreshold = 0.5
	DefaultMinimumCalls         = 10
	DefaultBreakerWindow        = 10 * time.Second
	DefaultBreakerBuckets       = 10
	DefaultBreakerCooldown      = 30 * time.Second

	// Admission defaults
	DefaultAdmissionCapacity = 8
	DefaultMaxQueue          = 64
	DefaultQueueTimeout      = 10 * time.Second

	// Coalescing defaults
	DefaultGraceWindow = 50 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "aegis"

	// Journal defaults
	DefaultJournalPath       = "data/journal.db"
	DefaultRetentionSchedule = "17 3 * * *"
	DefaultRetentionMaxAge   = 7 * 24 * time.Hour
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Endpoint defaults
	for name, ep := range cfg.Endpoints {
		if ep.CompletionPath == "" {
			ep.CompletionPath = DefaultCompletionPath
		}
		if ep.Timeout == 0 {
			ep.Timeout = DefaultEndpointTimeout
		}
		if ep.HealthInterval == 0 {
			ep.HealthInterval = DefaultHealthInterval
		}

		if ep.Breaker.FailureRateThreshold == 0 {
			ep.Breaker.FailureRateThreshold = DefaultFailureRateThreshold
		}
		if ep.Breaker.MinimumCalls == 0 {
			ep.Breaker.MinimumCalls = DefaultMinimumCalls
		}
		if ep.Breaker.Window == 0 {
			ep.Breaker.Window = DefaultBreakerWindow
		}
		if ep.Breaker.Buckets == 0 {
			ep.Breaker.Buckets = DefaultBreakerBuckets
		}
		if ep.Breaker.Cooldown == 0 {
			ep.Breaker.Cooldown = DefaultBreakerCooldown
		}

		if ep.Admission.Capacity == 0 {
			ep.Admission.Capacity = DefaultAdmissionCapacity
		}
		if ep.Admission.MaxQueue == 0 {
			ep.Admission.MaxQueue = DefaultMaxQueue
		}
		if ep.Admission.QueueTimeout == 0 {
			ep.Admission.QueueTimeout = DefaultQueueTimeout
		}

		if ep.Coalescing.GraceWindow == 0 {
			ep.Coalescing.GraceWindow = DefaultGraceWindow
		}

		cfg.Endpoints[name] = ep
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	// Metrics default on only when the section is entirely absent, so an
	// explicit enabled=false survives.
	if cfg.Telemetry.Metrics == (MetricsConfig{}) {
		cfg.Telemetry.Metrics.Enabled = true
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Journal defaults. Enabled defaults to true only when the section is
	// entirely absent, so an explicit enabled=false survives.
	if cfg.Journal == (JournalConfig{}) {
		cfg.Journal.Enabled = true
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	if cfg.Journal.RetentionSchedule == "" {
		cfg.Journal.RetentionSchedule = DefaultRetentionSchedule
	}
	if cfg.Journal.RetentionMaxAge == 0 {
		cfg.Journal.RetentionMaxAge = DefaultRetentionMaxAge
	}
}
