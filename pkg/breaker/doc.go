// Package breaker implements a per-endpoint circuit breaker with an
// error-rate trip condition over a bucketed rolling window.
//
// # States
//
//   - Closed: calls pass through; each outcome updates the rolling
//     success/failure counters. When the failure rate crosses the
//     configured threshold and the minimum call volume has been observed
//     within the window, the breaker opens.
//   - Open: calls are rejected immediately with an unavailable error,
//     without touching the upstream. After the cooldown the next call is
//     admitted as a half-open probe.
//   - HalfOpen: exactly one trial call is in flight. Success closes the
//     breaker and resets the counters; failure reopens it and restarts
//     the cooldown.
//
// Failure classification is delegated to the upstream taxonomy: caller
// cancellation never counts as a failure, so a client disconnecting
// mid-stream cannot trip the breaker.
//
// State transitions are totally ordered per breaker instance; the optional
// OnStateChange observer fires once per transition, outside the breaker's
// lock.
package breaker
