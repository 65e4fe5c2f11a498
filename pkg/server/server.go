// Package server provides the admin HTTP server exposing gateway state,
// health, recent call outcomes, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solstice-hq/aegis/pkg/config"
	"github.com/solstice-hq/aegis/pkg/gateway"
	"github.com/solstice-hq/aegis/pkg/journal"
)

// Server is the admin HTTP server.
type Server struct {
	config       *config.ServerConfig
	gateways     map[string]*gateway.Gateway
	journal      *journal.Journal
	metrics      http.Handler
	metricsPath  string
	logger       *slog.Logger
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates an admin server. The journal and metrics handler are
// optional; their routes are omitted when nil.
func NewServer(cfg *config.ServerConfig, gateways map[string]*gateway.Gateway, opts ...Option) *Server {
	s := &Server{
		config:       cfg,
		gateways:     gateways,
		metricsPath:  "/metrics",
		logger:       slog.Default(),
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option customizes a Server.
type Option func(*Server)

// WithJournal exposes /v1/calls/recent backed by the journal.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithMetricsHandler mounts the Prometheus handler at the given path.
func WithMetricsHandler(h http.Handler, path string) Option {
	return func(s *Server) {
		s.metrics = h
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/state", s.handleState)
	if s.journal != nil {
		mux.HandleFunc("/v1/calls/recent", s.handleRecentCalls)
	}
	if s.metrics != nil {
		mux.Handle(s.metricsPath, s.metrics)
	}

	return mux
}

// healthzResponse is the body of a /healthz response.
type healthzResponse struct {
	Status    string                          `json:"status"`
	Endpoints map[string]gateway.HealthStatus `json:"endpoints"`
}

// handleHealthz probes every endpoint concurrently and reports per-endpoint
// results. The response is 200 when at least one endpoint is healthy and 503
// otherwise.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]gateway.HealthStatus, len(s.gateways))

	g, ctx := errgroup.WithContext(ctx)
	for name, gw := range s.gateways {
		g.Go(func() error {
			status := gw.HealthCheck(ctx)
			mu.Lock()
			results[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	anyHealthy := false
	for _, status := range results {
		if status.Healthy {
			anyHealthy = true
			break
		}
	}

	resp := healthzResponse{Status: "ok", Endpoints: results}
	code := http.StatusOK
	if !anyHealthy {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, resp)
}

// handleState returns the breaker and admission snapshot for every endpoint,
// sorted by endpoint name.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	states := make([]gateway.State, 0, len(s.gateways))
	for _, gw := range s.gateways {
		states = append(states, gw.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Endpoint < states[j].Endpoint })

	s.writeJSON(w, http.StatusOK, map[string]any{"endpoints": states})
}

// handleRecentCalls returns recent journal entries for one endpoint.
// Query parameters: endpoint (required), limit (optional, default 50).
func (s *Server) handleRecentCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		http.Error(w, "endpoint parameter is required", http.StatusBadRequest)
		return
	}
	if _, ok := s.gateways[endpoint]; !ok {
		http.Error(w, fmt.Sprintf("unknown endpoint %q", endpoint), http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be an integer in [1, 1000]", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), endpoint, limit)
	if err != nil {
		s.logger.Error("failed to query journal", "endpoint", endpoint, "error", err)
		http.Error(w, "failed to query journal", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"calls": entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
