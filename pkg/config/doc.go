// Package config defines the YAML configuration for Aegis and its loading
// pipeline: parse, apply defaults, apply AEGIS_* environment overrides,
// validate. A file watcher supports hot reloading with debounced events;
// a reload that fails validation is rejected and the previous configuration
// stays in effect.
package config
