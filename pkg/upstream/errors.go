package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a gateway failure. It is the primary dispatch key for
// callers deciding whether to retry, back off, or surface the error.
type Kind int

const (
	// KindUnknown is the zero value and never produced by the gateway.
	KindUnknown Kind = iota

	// KindTimeout indicates the call exceeded its deadline while executing
	// against the upstream. Retryable. Counted by the circuit breaker.
	KindTimeout

	// KindUnavailable indicates the circuit breaker is open and the call was
	// rejected without touching the upstream. Retryable after the cooldown.
	KindUnavailable

	// KindUpstream indicates a non-2xx response or a network-level failure
	// from the upstream. Retryable iff the status is 429 or >= 500.
	KindUpstream

	// KindQueueTimeout indicates the call waited in the admission queue
	// longer than the configured queue timeout and was never admitted.
	// Retryable. Not counted by the circuit breaker.
	KindQueueTimeout

	// KindCancelled indicates the caller cancelled the call. Not retryable,
	// and never counted as a breaker failure.
	KindCancelled

	// KindMalformedFragment indicates a single stream record failed to
	// parse. It is recovered locally by skipping the record and is only
	// ever logged, never returned to a caller.
	KindMalformedFragment
)

// String returns the snake_case name of the kind, used in logs and metrics
// labels.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindUpstream:
		return "upstream_error"
	case KindQueueTimeout:
		return "queue_timeout"
	case KindCancelled:
		return "cancelled"
	case KindMalformedFragment:
		return "malformed_fragment"
	default:
		return "unknown"
	}
}

// Error is the structured failure type surfaced by the gateway.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Endpoint is the name of the upstream the call was addressed to.
	Endpoint string

	// Status is the upstream HTTP status code, 0 when not applicable.
	Status int

	// Retryable indicates whether a caller may reasonably retry the call.
	Retryable bool

	// RetryAfter is the upstream-suggested backoff for 429 responses,
	// 0 when the upstream provided none.
	RetryAfter time.Duration

	// Message is a short human-readable description. Callers must not
	// dispatch on it.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %q: %s (status %d): %s", e.Endpoint, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %q: %s: %s", e.Endpoint, e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewTimeout reports a call that exceeded its deadline while executing.
func NewTimeout(endpoint string, timeout time.Duration) *Error {
	msg := "request timed out"
	if timeout > 0 {
		msg = fmt.Sprintf("request timed out after %s", timeout)
	}
	return &Error{
		Kind:      KindTimeout,
		Endpoint:  endpoint,
		Retryable: true,
		Message:   msg,
	}
}

// NewUnavailable reports a call rejected because the breaker is open.
func NewUnavailable(endpoint, breakerState string) *Error {
	return &Error{
		Kind:      KindUnavailable,
		Endpoint:  endpoint,
		Retryable: true,
		Message:   fmt.Sprintf("circuit breaker %s", breakerState),
	}
}

// NewQueueTimeout reports a call that was never admitted within its queue
// timeout.
func NewQueueTimeout(endpoint string, waited time.Duration) *Error {
	return &Error{
		Kind:      KindQueueTimeout,
		Endpoint:  endpoint,
		Retryable: true,
		Message:   fmt.Sprintf("not admitted within %s", waited),
	}
}

// NewQueueFull reports a call rejected because the admission queue is at
// capacity. It shares KindQueueTimeout: both mean "never got upstream
// capacity" and carry the same retry guidance.
func NewQueueFull(endpoint string) *Error {
	return &Error{
		Kind:      KindQueueTimeout,
		Endpoint:  endpoint,
		Retryable: true,
		Message:   "admission queue full",
	}
}

// NewCancelled reports a caller-initiated cancellation.
func NewCancelled(endpoint string) *Error {
	return &Error{
		Kind:     KindCancelled,
		Endpoint: endpoint,
		Message:  "cancelled by caller",
	}
}

// NewStatusError reports a non-2xx upstream response. Status 429 and >= 500
// are marked retryable; other 4xx are fatal for the caller but still count
// as breaker failures.
func NewStatusError(endpoint string, status int, body string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindUpstream,
		Endpoint:   endpoint,
		Status:     status,
		Retryable:  status == 429 || status >= 500,
		RetryAfter: retryAfter,
		Message:    truncate(body, 256),
	}
}

// NewTransportError reports a network-level failure (connection refused,
// reset, DNS). These are retryable and count as breaker failures.
func NewTransportError(endpoint string, cause error) *Error {
	return &Error{
		Kind:      KindUpstream,
		Endpoint:  endpoint,
		Retryable: true,
		Message:   "transport failure",
		Cause:     cause,
	}
}

// NewMalformedFragment reports a single unparseable stream record. It is
// logged and skipped, never propagated.
func NewMalformedFragment(endpoint string, cause error) *Error {
	return &Error{
		Kind:     KindMalformedFragment,
		Endpoint: endpoint,
		Message:  "malformed stream record",
		Cause:    cause,
	}
}

// DeadlineExpired reports whether the context carries a deadline that has
// passed. It holds even when a racing explicit cancel set the context's
// error to Canceled before the deadline timer fired.
func DeadlineExpired(ctx context.Context) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	d, ok := ctx.Deadline()
	return ok && !time.Now().Before(d)
}

// ErrorFromContext maps a fired context into the taxonomy: an expired
// deadline is a timeout, anything else a caller cancellation. timeout is
// folded into the message when known; zero is fine.
func ErrorFromContext(ctx context.Context, endpoint string, timeout time.Duration) *Error {
	if DeadlineExpired(ctx) {
		return NewTimeout(endpoint, timeout)
	}
	return NewCancelled(endpoint)
}

// IsRetryable reports whether the caller may retry the failed call.
func IsRetryable(err error) bool {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// CountsAsFailure reports whether an error should update the circuit
// breaker's failure counters. Caller cancellation and admission-control
// starvation are resolved before the upstream is involved and must never
// trip the breaker.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var uerr *Error
	if errors.As(err, &uerr) {
		switch uerr.Kind {
		case KindCancelled, KindQueueTimeout, KindUnavailable:
			return false
		}
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// KindOf extracts the Kind from an error chain, KindUnknown if the chain
// contains no *Error.
func KindOf(err error) Kind {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Kind
	}
	return KindUnknown
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
