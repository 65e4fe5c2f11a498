// Package upstream defines the failure taxonomy and the HTTP transport used
// to reach a protected upstream service.
//
// # Failure Taxonomy
//
// Every failure surfaced by the gateway is an *Error carrying a Kind, a
// Retryable flag, and (when applicable) the upstream HTTP status. Callers
// decide whether to retry by inspecting the structure, never by matching
// message strings:
//
//	var uerr *upstream.Error
//	if errors.As(err, &uerr) && uerr.Retryable {
//	    // back off and retry
//	}
//
// Caller-initiated cancellation (KindCancelled) is deliberately excluded
// from circuit breaker failure accounting: a client disconnecting mid-stream
// must not trip the breaker. CountsAsFailure encodes that rule.
//
// # Transport
//
// HTTPTransport is the single network collaborator of the gateway. It owns
// a pooled http.Transport, maps transport-level and status-level failures
// into the taxonomy, and hands back the raw response body as a byte source
// for streaming calls. It performs exactly one attempt per Send: retry
// policy is the caller's decision, guided by Error.Retryable, and failure
// accounting belongs to the circuit breaker.
package upstream
