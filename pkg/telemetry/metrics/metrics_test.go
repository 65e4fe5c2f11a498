package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/solstice-hq/aegis/pkg/breaker"
	"github.com/solstice-hq/aegis/pkg/gateway"
)

// The collector must satisfy the gateway's sink interface.
var _ gateway.MetricsSink = (*Collector)(nil)

func TestRecordCall(t *testing.T) {
	c := NewCollector(Config{}, nil)

	c.RecordCall("openai", 200*time.Millisecond, true, "complete")
	c.RecordCall("openai", 300*time.Millisecond, true, "complete")
	c.RecordCall("openai", 100*time.Millisecond, false, "stream")

	if got := testutil.ToFloat64(c.callsTotal.WithLabelValues("openai", "complete", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.callsTotal.WithLabelValues("openai", "stream", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestRecordBreakerState(t *testing.T) {
	c := NewCollector(Config{}, nil)

	c.RecordBreakerState("openai", breaker.StateOpen)
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("openai", "open")); got != 1 {
		t.Errorf("open gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("openai", "closed")); got != 0 {
		t.Errorf("closed gauge = %v, want 0", got)
	}

	// A transition back resets the previous state's gauge.
	c.RecordBreakerState("openai", breaker.StateClosed)
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("openai", "open")); got != 0 {
		t.Errorf("open gauge after close = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("openai", "closed")); got != 1 {
		t.Errorf("closed gauge after close = %v, want 1", got)
	}
}

func TestRecordQueueAndCoalesced(t *testing.T) {
	c := NewCollector(Config{}, nil)

	c.RecordQueue("openai", 3, 7)
	if got := testutil.ToFloat64(c.queueDepth.WithLabelValues("openai")); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.inFlight.WithLabelValues("openai")); got != 7 {
		t.Errorf("in flight = %v, want 7", got)
	}

	c.RecordCoalesced("openai")
	c.RecordCoalesced("openai")
	if got := testutil.ToFloat64(c.coalescedTotal.WithLabelValues("openai")); got != 2 {
		t.Errorf("coalesced = %v, want 2", got)
	}
}

func TestRecordHealth(t *testing.T) {
	c := NewCollector(Config{}, nil)

	c.RecordHealth("openai", true, 50*time.Millisecond)
	if got := testutil.ToFloat64(c.healthUp.WithLabelValues("openai")); got != 1 {
		t.Errorf("healthy gauge = %v, want 1", got)
	}
	c.RecordHealth("openai", false, 50*time.Millisecond)
	if got := testutil.ToFloat64(c.healthUp.WithLabelValues("openai")); got != 0 {
		t.Errorf("unhealthy gauge = %v, want 0", got)
	}
}

func TestCustomNamespace(t *testing.T) {
	c := NewCollector(Config{Namespace: "custom"}, nil)
	c.RecordCoalesced("openai")

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "custom_coalesced_total" {
			found = true
		}
	}
	if !found {
		t.Error("custom_coalesced_total not registered")
	}
}
