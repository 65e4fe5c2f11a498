package upstream

import "time"

// Endpoint identifies one logical failure domain: a single upstream service
// protected by its own circuit breaker, admission limiter, and coalescing
// registry. Immutable after construction.
type Endpoint struct {
	// Name is the endpoint identifier (e.g., "anthropic", "openai").
	Name string

	// BaseURL is the API endpoint base URL.
	BaseURL string

	// CompletionPath is the request path for completion calls.
	CompletionPath string

	// HealthPath is the request path used by synthetic health probes.
	// Defaults to CompletionPath when empty.
	HealthPath string

	// APIKey is the authentication key sent on every request. It is never
	// logged and never embedded in fingerprints in cleartext.
	APIKey string

	// Timeout is the default overall deadline for a single call.
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	IdleConnTimeout time.Duration
}
