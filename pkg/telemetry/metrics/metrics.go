// Package metrics exposes gateway observations as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/solstice-hq/aegis/pkg/breaker"
)

// Config contains configuration for the metrics collector.
type Config struct {
	// Namespace is the Prometheus metric namespace. Default "aegis".
	Namespace string

	// DurationBuckets are the histogram buckets, in seconds, for call
	// durations. Defaults cover 100ms to 60s.
	DurationBuckets []float64
}

// Collector registers and records all gateway metrics. It satisfies the
// gateway's metrics sink interface.
type Collector struct {
	registry *prometheus.Registry

	// Per-call outcomes
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	// Circuit breaker state, one gauge per endpoint/state pair (1 for the
	// current state, 0 otherwise)
	breakerState *prometheus.GaugeVec

	// Admission queue snapshots
	queueDepth *prometheus.GaugeVec
	inFlight   *prometheus.GaugeVec

	// Coalescing
	coalescedTotal *prometheus.CounterVec

	// Health probes
	healthUp        *prometheus.GaugeVec
	healthProbeTime *prometheus.HistogramVec
}

// NewCollector creates a collector and registers its metrics. If registry is
// nil a fresh registry is created.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "aegis"
	}
	if len(cfg.DurationBuckets) == 0 {
		// Completion latencies run long; cover 100ms to 60s.
		cfg.DurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}
	}

	c := &Collector{
		registry: registry,

		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "calls_total",
				Help:      "Total number of upstream calls by endpoint, mode, and outcome",
			},
			[]string{"endpoint", "mode", "outcome"},
		),

		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of upstream calls in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"endpoint", "mode"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per endpoint (1 for the current state)",
			},
			[]string{"endpoint", "state"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "queue_depth",
				Help:      "Number of callers waiting for admission",
			},
			[]string{"endpoint"},
		),

		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "in_flight",
				Help:      "Number of calls currently executing against the upstream",
			},
			[]string{"endpoint"},
		),

		coalescedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "coalesced_total",
				Help:      "Total number of submissions that attached to an in-flight execution",
			},
			[]string{"endpoint"},
		),

		healthUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_healthy",
				Help:      "Health probe result per endpoint (1 healthy, 0 unhealthy)",
			},
			[]string{"endpoint"},
		),

		healthProbeTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "health_probe_duration_seconds",
				Help:      "Duration of health probes in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"endpoint"},
		),
	}

	registry.MustRegister(
		c.callsTotal,
		c.callDuration,
		c.breakerState,
		c.queueDepth,
		c.inFlight,
		c.coalescedTotal,
		c.healthUp,
		c.healthProbeTime,
	)

	return c
}

// RecordCall records one settled call.
func (c *Collector) RecordCall(endpoint string, duration time.Duration, success bool, mode string) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	c.callsTotal.WithLabelValues(endpoint, mode, outcome).Inc()
	c.callDuration.WithLabelValues(endpoint, mode).Observe(duration.Seconds())
}

// RecordBreakerState records a circuit breaker transition. The gauge for the
// new state is set to 1 and all others to 0 so queries can select on state.
func (c *Collector) RecordBreakerState(endpoint string, state breaker.State) {
	for _, s := range []breaker.State{breaker.StateClosed, breaker.StateOpen, breaker.StateHalfOpen} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		c.breakerState.WithLabelValues(endpoint, s.String()).Set(v)
	}
}

// RecordQueue records an admission queue snapshot.
func (c *Collector) RecordQueue(endpoint string, depth, inFlight int) {
	c.queueDepth.WithLabelValues(endpoint).Set(float64(depth))
	c.inFlight.WithLabelValues(endpoint).Set(float64(inFlight))
}

// RecordCoalesced records a submission served by an in-flight execution.
func (c *Collector) RecordCoalesced(endpoint string) {
	c.coalescedTotal.WithLabelValues(endpoint).Inc()
}

// RecordHealth records a health probe outcome.
func (c *Collector) RecordHealth(endpoint string, healthy bool, responseTime time.Duration) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.healthUp.WithLabelValues(endpoint).Set(v)
	c.healthProbeTime.WithLabelValues(endpoint).Observe(responseTime.Seconds())
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
