package gateway

import (
	"log/slog"
	"time"

	"github.com/solstice-hq/aegis/pkg/journal"
	"github.com/solstice-hq/aegis/pkg/upstream"
)

// Request is one logical request against the gateway's endpoint.
type Request struct {
	// Path overrides the endpoint's completion path when non-empty.
	Path string

	// Payload is the canonical request body. The gateway treats it as
	// opaque; it is fingerprinted but never logged.
	Payload []byte

	// Credential scopes the request to a caller for deduplication:
	// requests from different credentials never coalesce. It is folded
	// into the fingerprint as a digest and never appears in cleartext in
	// fingerprints or logs.
	Credential string

	// Headers are forwarded to the transport.
	Headers map[string]string
}

// CallOptions are per-call knobs.
type CallOptions struct {
	// Priority admits the call from the priority lane when queued.
	Priority bool

	// Timeout overrides the endpoint's overall deadline when positive.
	Timeout time.Duration

	// OnChunk, for streaming calls, observes each text increment in
	// order. Coalesced waiters observe the identical increments the
	// originating execution recorded.
	OnChunk func(string)
}

// Response is the settled outcome of a successful call.
type Response struct {
	// Status is the upstream HTTP status code.
	Status int `json:"status"`

	// Body is the response payload. For streaming calls it is the fully
	// assembled text.
	Body []byte `json:"body"`

	// RequestID identifies this logical call in logs and the journal.
	RequestID string `json:"request_id"`

	// Coalesced reports whether this caller attached to an execution
	// already in flight.
	Coalesced bool `json:"coalesced"`

	// Duration is the caller-observed latency, queue and wait time
	// included.
	Duration time.Duration `json:"duration"`
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithTransport replaces the default HTTP transport.
func WithTransport(t upstream.Transport) Option {
	return func(g *Gateway) { g.transport = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(sink MetricsSink) Option {
	return func(g *Gateway) { g.metrics = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithJournal enables call-outcome journaling.
func WithJournal(j *journal.Journal) Option {
	return func(g *Gateway) { g.journal = j }
}
