package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/solstice-hq/aegis/internal/upstreamtest"
	"github.com/solstice-hq/aegis/pkg/admission"
	"github.com/solstice-hq/aegis/pkg/breaker"
	"github.com/solstice-hq/aegis/pkg/config"
	"github.com/solstice-hq/aegis/pkg/gateway"
	"github.com/solstice-hq/aegis/pkg/journal"
	"github.com/solstice-hq/aegis/pkg/upstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockGateway(t *testing.T, name string, ms *upstreamtest.MockServer) *gateway.Gateway {
	t.Helper()
	g := gateway.New(gateway.Config{
		Endpoint: upstream.Endpoint{
			Name:           name,
			BaseURL:        ms.URL(),
			CompletionPath: "/v1/completions",
			HealthPath:     "/health",
			Timeout:        2 * time.Second,
		},
		Breaker: breaker.Settings{
			FailureRateThreshold: 0.5,
			MinimumCalls:         10,
			Window:               10 * time.Second,
			Buckets:              10,
			Cooldown:             time.Minute,
		},
		Admission: admission.Config{
			Capacity:     4,
			MaxQueue:     8,
			QueueTimeout: time.Second,
		},
	}, gateway.WithLogger(testLogger()))
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func serverConfig() *config.ServerConfig {
	return &config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func TestHealthzReportsHealthyEndpoints(t *testing.T) {
	ms := upstreamtest.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/health", upstreamtest.MockResponse{StatusCode: 200, Body: `{"status":"ok"}`})

	gws := map[string]*gateway.Gateway{"mock": newMockGateway(t, "mock", ms)}
	srv := NewServer(serverConfig(), gws, WithLogger(testLogger()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body healthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status field = %q", body.Status)
	}
	ep, ok := body.Endpoints["mock"]
	if !ok || !ep.Healthy {
		t.Errorf("mock endpoint missing or unhealthy: %+v", body.Endpoints)
	}
}

func TestHealthzUnavailableWhenAllEndpointsDown(t *testing.T) {
	ms := upstreamtest.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/health", upstreamtest.MockResponse{StatusCode: 503, Body: "down"})

	gws := map[string]*gateway.Gateway{"mock": newMockGateway(t, "mock", ms)}
	srv := NewServer(serverConfig(), gws, WithLogger(testLogger()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStateListsEndpointsSorted(t *testing.T) {
	ms := upstreamtest.NewMockServer()
	defer ms.Close()

	gws := map[string]*gateway.Gateway{
		"zeta":  newMockGateway(t, "zeta", ms),
		"alpha": newMockGateway(t, "alpha", ms),
	}
	srv := NewServer(serverConfig(), gws, WithLogger(testLogger()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/state")
	if err != nil {
		t.Fatalf("state request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Endpoints []gateway.State `json:"endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Endpoints) != 2 {
		t.Fatalf("got %d endpoints, want 2", len(body.Endpoints))
	}
	if body.Endpoints[0].Endpoint != "alpha" || body.Endpoints[1].Endpoint != "zeta" {
		t.Errorf("endpoints not sorted: %+v", body.Endpoints)
	}
	if body.Endpoints[0].BreakerStr != "closed" {
		t.Errorf("breaker = %q, want closed", body.Endpoints[0].BreakerStr)
	}
	if body.Endpoints[0].Capacity != 4 {
		t.Errorf("capacity = %d, want 4", body.Endpoints[0].Capacity)
	}
}

func TestRecentCallsValidation(t *testing.T) {
	ms := upstreamtest.NewMockServer()
	defer ms.Close()

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	gws := map[string]*gateway.Gateway{"mock": newMockGateway(t, "mock", ms)}
	srv := NewServer(serverConfig(), gws, WithJournal(j), WithLogger(testLogger()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing endpoint", "/v1/calls/recent", http.StatusBadRequest},
		{"unknown endpoint", "/v1/calls/recent?endpoint=nope", http.StatusNotFound},
		{"bad limit", "/v1/calls/recent?endpoint=mock&limit=zero", http.StatusBadRequest},
		{"limit too large", "/v1/calls/recent?endpoint=mock&limit=5000", http.StatusBadRequest},
		{"valid", "/v1/calls/recent?endpoint=mock&limit=10", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.url)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRecentCallsReturnsJournalEntries(t *testing.T) {
	ms := upstreamtest.NewMockServer()
	defer ms.Close()

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	err = j.Record(context.Background(), &journal.Entry{
		RequestID: "req-1",
		Endpoint:  "mock",
		Mode:      "complete",
		Outcome:   "success",
		Status:    200,
		Duration:  120 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to record entry: %v", err)
	}

	gws := map[string]*gateway.Gateway{"mock": newMockGateway(t, "mock", ms)}
	srv := NewServer(serverConfig(), gws, WithJournal(j), WithLogger(testLogger()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/calls/recent?endpoint=mock")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Calls []*journal.Entry `json:"calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Calls) != 1 || body.Calls[0].RequestID != "req-1" {
		t.Errorf("calls = %+v, want the recorded entry", body.Calls)
	}
}

func TestRecentCallsRouteAbsentWithoutJournal(t *testing.T) {
	ms := upstreamtest.NewMockServer()
	defer ms.Close()

	gws := map[string]*gateway.Gateway{"mock": newMockGateway(t, "mock", ms)}
	srv := NewServer(serverConfig(), gws, WithLogger(testLogger()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/calls/recent?endpoint=mock")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no journal is configured", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ms := upstreamtest.NewMockServer()
	defer ms.Close()

	gws := map[string]*gateway.Gateway{"mock": newMockGateway(t, "mock", ms)}
	srv := NewServer(serverConfig(), gws, WithLogger(testLogger()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/v1/state"} {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", path, resp.StatusCode)
		}
	}
}
