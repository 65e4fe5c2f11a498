package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "endpoints.openai.base_url").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateEndpoints(cfg.Endpoints)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateServer validates admin server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	return errs
}

// validateEndpoints validates all upstream endpoint configurations.
func validateEndpoints(endpoints map[string]EndpointConfig) []FieldError {
	var errs []FieldError

	if len(endpoints) == 0 {
		errs = append(errs, FieldError{
			Field:   "endpoints",
			Message: "at least one endpoint is required",
		})
		return errs
	}

	for name, ep := range endpoints {
		prefix := fmt.Sprintf("endpoints.%s", name)

		if ep.BaseURL == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".base_url",
				Message: "base URL is required",
			})
		} else if u, err := url.Parse(ep.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".base_url",
				Message: fmt.Sprintf("invalid URL: %q", ep.BaseURL),
			})
		}

		if ep.CompletionPath != "" && !strings.HasPrefix(ep.CompletionPath, "/") {
			errs = append(errs, FieldError{
				Field:   prefix + ".completion_path",
				Message: "path must start with /",
			})
		}
		if ep.HealthPath != "" && !strings.HasPrefix(ep.HealthPath, "/") {
			errs = append(errs, FieldError{
				Field:   prefix + ".health_path",
				Message: "path must start with /",
			})
		}
		if ep.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "timeout must be positive",
			})
		}

		errs = append(errs, validateBreaker(prefix+".breaker", &ep.Breaker)...)
		errs = append(errs, validateAdmission(prefix+".admission", &ep.Admission)...)

		if ep.Coalescing.GraceWindow < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".coalescing.grace_window",
				Message: "grace window must be positive",
			})
		}
	}

	return errs
}

// validateBreaker validates circuit breaker settings.
func validateBreaker(prefix string, cfg *BreakerConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureRateThreshold <= 0 || cfg.FailureRateThreshold > 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".failure_rate_threshold",
			Message: "failure rate threshold must be in (0, 1]",
		})
	}
	if cfg.MinimumCalls < 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".minimum_calls",
			Message: "minimum calls must be at least 1",
		})
	}
	if cfg.Window <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".window",
			Message: "window must be positive",
		})
	}
	if cfg.Buckets < 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".buckets",
			Message: "buckets must be at least 1",
		})
	}
	if cfg.Cooldown <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".cooldown",
			Message: "cooldown must be positive",
		})
	}

	return errs
}

// validateAdmission validates concurrency limiter settings.
func validateAdmission(prefix string, cfg *AdmissionConfig) []FieldError {
	var errs []FieldError

	if cfg.Capacity < 1 {
		errs = append(errs, FieldError{
			Field:   prefix + ".capacity",
			Message: "capacity must be at least 1",
		})
	}
	if cfg.MaxQueue < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".max_queue",
			Message: "max queue must not be negative",
		})
	}
	if cfg.QueueTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".queue_timeout",
			Message: "queue timeout must be positive",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown log level %q", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text", "":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown log format %q", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "path must start with /",
		})
	}

	return errs
}

// validateJournal validates call journal configuration.
func validateJournal(cfg *JournalConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}
	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "journal.path",
			Message: "journal path is required when the journal is enabled",
		})
	}
	if cfg.RetentionMaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.retention_max_age",
			Message: "retention max age must be positive",
		})
	}

	return errs
}
