package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
endpoints:
  openai:
    base_url: "https://api.openai.com"
    api_key: "sk-test"
`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q, want default", cfg.Server.ListenAddress)
	}
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("shutdown timeout = %v, want default", cfg.Server.ShutdownTimeout)
	}

	ep := cfg.Endpoints["openai"]
	if ep.CompletionPath != DefaultCompletionPath {
		t.Errorf("completion path = %q, want default", ep.CompletionPath)
	}
	if ep.Timeout != DefaultEndpointTimeout {
		t.Errorf("timeout = %v, want default", ep.Timeout)
	}
	if ep.Breaker.FailureRateThreshold != DefaultFailureRateThreshold {
		t.Errorf("threshold = %v, want default", ep.Breaker.FailureRateThreshold)
	}
	if ep.Admission.Capacity != DefaultAdmissionCapacity {
		t.Errorf("capacity = %d, want default", ep.Admission.Capacity)
	}
	if ep.Coalescing.GraceWindow != DefaultGraceWindow {
		t.Errorf("grace window = %v, want default", ep.Coalescing.GraceWindow)
	}

	if !cfg.Journal.Enabled {
		t.Error("journal must default to enabled")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics must default to enabled")
	}
	if cfg.Telemetry.Logging.Level != "info" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q", cfg.Telemetry.Logging.Level, cfg.Telemetry.Logging.Format)
	}
}

func TestLoadConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:8080"
endpoints:
  anthropic:
    base_url: "https://api.anthropic.com"
    completion_path: "/v1/messages"
    timeout: 90s
    breaker:
      failure_rate_threshold: 0.25
      minimum_calls: 20
    admission:
      capacity: 4
journal:
  enabled: false
  path: "custom/journal.db"
telemetry:
  metrics:
    enabled: false
    path: "/metrics"
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	ep := cfg.Endpoints["anthropic"]
	if ep.CompletionPath != "/v1/messages" {
		t.Errorf("completion path = %q", ep.CompletionPath)
	}
	if ep.Timeout != 90*time.Second {
		t.Errorf("timeout = %v", ep.Timeout)
	}
	if ep.Breaker.FailureRateThreshold != 0.25 || ep.Breaker.MinimumCalls != 20 {
		t.Errorf("breaker = %+v", ep.Breaker)
	}
	if ep.Admission.Capacity != 4 {
		t.Errorf("capacity = %d", ep.Admission.Capacity)
	}
	// Defaults still fill the rest of a partially specified section.
	if ep.Admission.MaxQueue != DefaultMaxQueue {
		t.Errorf("max queue = %d, want default", ep.Admission.MaxQueue)
	}

	if cfg.Journal.Enabled {
		t.Error("explicit journal enabled=false must survive defaults")
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("explicit metrics enabled=false must survive defaults")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfigFile(t, "endpoints: [not a map")); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, `
endpoints:
  broken:
    base_url: "not a url"
    completion_path: "no-leading-slash"
`))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("AEGIS_SERVER_LISTEN_ADDRESS", "127.0.0.1:7777")
	t.Setenv("AEGIS_ENDPOINTS_OPENAI_API_KEY", "sk-from-env")
	t.Setenv("AEGIS_ENDPOINTS_OPENAI_TIMEOUT", "42s")
	t.Setenv("AEGIS_ENDPOINTS_OPENAI_CAPACITY", "3")
	t.Setenv("AEGIS_TELEMETRY_LOGGING_LEVEL", "debug")
	t.Setenv("AEGIS_JOURNAL_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:7777" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	ep := cfg.Endpoints["openai"]
	if ep.APIKey != "sk-from-env" {
		t.Errorf("api key = %q, env must win over file", ep.APIKey)
	}
	if ep.Timeout != 42*time.Second {
		t.Errorf("timeout = %v", ep.Timeout)
	}
	if ep.Admission.Capacity != 3 {
		t.Errorf("capacity = %d", ep.Admission.Capacity)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Journal.Enabled {
		t.Error("journal must be disabled by env override")
	}
}

func TestEnvOverridesRevalidate(t *testing.T) {
	t.Setenv("AEGIS_TELEMETRY_LOGGING_LEVEL", "shout")

	if _, err := LoadConfigWithEnvOverrides(writeConfigFile(t, minimalConfig)); err == nil {
		t.Fatal("expected validation error for bad env override")
	}
}
