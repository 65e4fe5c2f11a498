package gateway

import (
	"context"
	"time"
)

// maxHealthBackoff caps the probe interval while the endpoint is unhealthy.
const maxHealthBackoff = 5 * time.Minute

// probeTimeout bounds one synthetic probe.
const probeTimeout = 5 * time.Second

// Monitor runs periodic synthetic health probes through one gateway.
type Monitor struct {
	gw       *Gateway
	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}

	consecutiveFailures int
}

// StartMonitor launches a background probe loop. While the endpoint is
// unhealthy the interval backs off exponentially to reduce load, resetting
// once a probe succeeds.
func (g *Gateway) StartMonitor(ctx context.Context, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &Monitor{
		gw:       g,
		interval: interval,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go m.run(ctx)
	return m
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.stopped
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.gw.logger.Info("health monitor started", "interval", m.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.probe(ctx)
			ticker.Reset(m.nextInterval())
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := m.gw.HealthCheck(probeCtx)
	if status.Healthy {
		if m.consecutiveFailures > 0 {
			m.gw.logger.Info("endpoint recovered",
				"previous_failures", m.consecutiveFailures,
			)
		}
		m.consecutiveFailures = 0
		m.gw.logger.Debug("health probe passed", "latency", status.ResponseTime)
		return
	}

	m.consecutiveFailures++
	m.gw.logger.Warn("health probe failed",
		"consecutive_failures", m.consecutiveFailures,
		"breaker", status.Breaker,
		"error", status.Error,
	)
}

// nextInterval returns the backed-off interval: base * 2^failures, capped.
func (m *Monitor) nextInterval() time.Duration {
	if m.consecutiveFailures == 0 {
		return m.interval
	}
	shift := m.consecutiveFailures
	if shift > 4 {
		shift = 4
	}
	next := m.interval * time.Duration(1<<uint(shift))
	if next > maxHealthBackoff {
		next = maxHealthBackoff
	}
	return next
}
