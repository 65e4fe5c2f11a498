// Package gateway composes the resilience mechanisms protecting one
// upstream endpoint into a single call surface.
//
// A logical request flows: fingerprint -> coalescing registry (duplicate
// submissions attach to the execution already in flight) -> admission
// limiter (bounded concurrency with a two-lane queue) -> circuit breaker
// (failure isolation) -> transport, with the stream reader assembling
// event-stream responses into text increments.
//
// Per call the gateway assigns a request ID, enforces the endpoint's
// overall deadline, reports duration and outcome to the metrics sink, and
// optionally records the outcome in the call journal. Metrics and journal
// failures never affect call correctness.
package gateway
