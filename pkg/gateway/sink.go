package gateway

import (
	"time"

	"github.com/solstice-hq/aegis/pkg/breaker"
)

// Call modes reported to the metrics sink.
const (
	ModeComplete = "complete"
	ModeStream   = "stream"
	ModeHealth   = "health"
)

// MetricsSink observes gateway outcomes. Implementations must be
// fire-and-forget: they are invoked inline on the call path and must never
// block or fail in a way that affects the call.
type MetricsSink interface {
	// RecordCall reports one settled call.
	RecordCall(endpoint string, duration time.Duration, success bool, mode string)

	// RecordBreakerState reports a circuit breaker transition.
	RecordBreakerState(endpoint string, state breaker.State)

	// RecordQueue reports the admission queue snapshot after a call.
	RecordQueue(endpoint string, depth, inFlight int)

	// RecordCoalesced reports a submission that attached to an in-flight
	// execution instead of running its own.
	RecordCoalesced(endpoint string)

	// RecordHealth reports the outcome of a synthetic health probe.
	RecordHealth(endpoint string, healthy bool, responseTime time.Duration)
}

// NopSink discards all observations. It is the default sink.
type NopSink struct{}

func (NopSink) RecordCall(string, time.Duration, bool, string) {}
func (NopSink) RecordBreakerState(string, breaker.State)       {}
func (NopSink) RecordQueue(string, int, int)                   {}
func (NopSink) RecordCoalesced(string)                         {}
func (NopSink) RecordHealth(string, bool, time.Duration)       {}
