// Aegis is a resilience gateway for LLM completion upstreams.
//
// It fronts one or more completion endpoints with per-endpoint circuit
// breaking, bounded-concurrency admission control with priority queueing,
// and in-flight request coalescing, while assembling upstream SSE streams
// into clean text increments for callers.
//
// Usage:
//
//	# Start with default configuration
//	aegis run
//
//	# Start with custom configuration file
//	aegis run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	aegis validate --config /path/to/config.yaml
//
//	# Show version information
//	aegis version
package main

func main() {
	Execute()
}
