package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solstice-hq/aegis/pkg/admission"
	"github.com/solstice-hq/aegis/pkg/breaker"
	"github.com/solstice-hq/aegis/pkg/coalesce"
	"github.com/solstice-hq/aegis/pkg/journal"
	"github.com/solstice-hq/aegis/pkg/stream"
	"github.com/solstice-hq/aegis/pkg/upstream"
)

// Config assembles one gateway. Endpoint identity is propagated into the
// breaker and limiter settings; their Endpoint fields may be left empty.
type Config struct {
	// Endpoint identifies the upstream this gateway protects.
	Endpoint upstream.Endpoint

	// Breaker configures the circuit breaker. OnStateChange is owned by
	// the gateway and must be left unset.
	Breaker breaker.Settings

	// Admission configures the concurrency limiter.
	Admission admission.Config

	// CoalescingGrace is how long a settled coalescing entry lingers to
	// absorb trailing duplicates.
	CoalescingGrace time.Duration
}

// State is the gateway's introspection snapshot.
type State struct {
	Endpoint   string        `json:"endpoint"`
	Breaker    breaker.State `json:"-"`
	BreakerStr string        `json:"breaker"`
	QueueDepth int           `json:"queue_depth"`
	InFlight   int           `json:"in_flight"`
	Capacity   int           `json:"capacity"`
}

// HealthStatus is the outcome of a synthetic probe through the full call
// path.
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	Breaker      string        `json:"breaker"`
	Error        string        `json:"error,omitempty"`
}

// result is the shared outcome fanned out to every coalesced waiter.
type result struct {
	status int
	body   []byte

	// chunks is the recorded increment sequence of a streaming call,
	// replayed to waiters so all callers observe identical increments.
	chunks []string
	text   string
}

// Gateway is the composition root protecting one upstream endpoint.
type Gateway struct {
	endpoint  upstream.Endpoint
	transport upstream.Transport
	breaker   *breaker.Breaker
	limiter   *admission.Limiter
	registry  *coalesce.Registry[*result]
	metrics   MetricsSink
	journal   *journal.Journal
	logger    *slog.Logger
}

// New creates a Gateway. The default transport is the pooled HTTP
// transport for the configured endpoint.
func New(cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		endpoint: cfg.Endpoint,
		metrics:  NopSink{},
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("endpoint", cfg.Endpoint.Name)

	bs := cfg.Breaker
	bs.Endpoint = cfg.Endpoint.Name
	bs.Logger = g.logger
	bs.OnStateChange = func(endpoint string, from, to breaker.State) {
		g.metrics.RecordBreakerState(endpoint, to)
	}
	g.breaker = breaker.New(bs)

	ac := cfg.Admission
	ac.Endpoint = cfg.Endpoint.Name
	ac.Logger = g.logger
	g.limiter = admission.New(ac)

	g.registry = coalesce.NewRegistry[*result](cfg.CoalescingGrace, g.logger)

	if g.transport == nil {
		g.transport = upstream.NewHTTPTransport(cfg.Endpoint, g.logger)
	}

	return g
}

// Complete performs one non-streaming call.
func (g *Gateway) Complete(ctx context.Context, req *Request, opts *CallOptions) (*Response, error) {
	return g.call(ctx, req, opts, false)
}

// StreamComplete performs one streaming call. opts.OnChunk fires zero or
// more times before resolution; the returned body is the fully assembled
// text.
func (g *Gateway) StreamComplete(ctx context.Context, req *Request, opts *CallOptions) (*Response, error) {
	return g.call(ctx, req, opts, true)
}

// State returns a side-effect-free snapshot of the breaker and queue.
func (g *Gateway) State() State {
	st := g.limiter.Status()
	bst := g.breaker.State()
	return State{
		Endpoint:   g.endpoint.Name,
		Breaker:    bst,
		BreakerStr: bst.String(),
		QueueDepth: st.Depth,
		InFlight:   st.InFlight,
		Capacity:   st.Capacity,
	}
}

// HealthCheck issues a minimal synthetic call through the full gateway
// path: coalescing, admission, breaker, transport.
func (g *Gateway) HealthCheck(ctx context.Context) HealthStatus {
	path := g.endpoint.HealthPath
	if path == "" {
		path = g.endpoint.CompletionPath
	}

	start := time.Now()
	_, err := g.Complete(ctx, &Request{
		Path:    path,
		Payload: []byte(`{"probe":true}`),
	}, &CallOptions{Priority: true})
	elapsed := time.Since(start)

	status := HealthStatus{
		Healthy:      err == nil,
		ResponseTime: elapsed,
		Breaker:      g.breaker.State().String(),
	}
	if err != nil {
		status.Error = err.Error()
	}

	g.metrics.RecordHealth(g.endpoint.Name, status.Healthy, elapsed)
	return status
}

// Close releases the transport's pooled connections.
func (g *Gateway) Close() error {
	return g.transport.Close()
}

// call drives one logical request through the full pipeline.
func (g *Gateway) call(ctx context.Context, req *Request, opts *CallOptions, streaming bool) (*Response, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	mode := ModeComplete
	if streaming {
		mode = ModeStream
	}

	requestID := uuid.NewString()
	logger := g.logger.With("request_id", requestID, "mode", mode)
	start := time.Now()

	ctx, cancel := g.callContext(ctx, opts)
	defer cancel()

	path := req.Path
	if path == "" {
		path = g.endpoint.CompletionPath
	}
	fingerprint := coalesce.Fingerprint(g.endpoint.Name, path, mode, req.Payload, req.Credential)

	res, shared, err := g.registry.Submit(ctx, fingerprint, func(execCtx context.Context) (*result, error) {
		return g.execute(execCtx, ctx, req, path, opts, streaming)
	})
	duration := time.Since(start)

	if shared {
		g.metrics.RecordCoalesced(g.endpoint.Name)
		logger.Debug("coalesced onto in-flight request")
	}

	if err != nil {
		err = g.mapWaitError(err)
		g.report(requestID, mode, duration, shared, 0, err)
		logger.Debug("call failed",
			"duration", duration,
			"kind", upstream.KindOf(err).String(),
		)
		return nil, err
	}

	// A coalesced waiter on a streaming call replays the recorded
	// increments so its observer sees byte-identical output.
	if streaming && shared && opts.OnChunk != nil {
		for _, chunk := range res.chunks {
			opts.OnChunk(chunk)
		}
	}

	body := res.body
	if streaming {
		body = []byte(res.text)
	}

	g.report(requestID, mode, duration, shared, res.status, nil)
	queue := g.limiter.Status()
	g.metrics.RecordQueue(g.endpoint.Name, queue.Depth, queue.InFlight)

	return &Response{
		Status:    res.status,
		Body:      body,
		RequestID: requestID,
		Coalesced: shared,
		Duration:  duration,
	}, nil
}

// execute is the originating path: admission, breaker, transport, and for
// streaming calls the incremental reader. Runs on the shared coalesced
// context; caller is the originating caller's own context, consulted only
// to stop live chunk delivery once that caller has detached.
func (g *Gateway) execute(ctx, caller context.Context, req *Request, path string, opts *CallOptions, streaming bool) (*result, error) {
	res := &result{}

	err := g.limiter.Execute(ctx, admission.Options{Priority: opts.Priority}, func(ctx context.Context) error {
		return g.breaker.Call(ctx, func(ctx context.Context) error {
			resp, err := g.transport.Send(ctx, &upstream.Request{
				Path:    path,
				Body:    req.Payload,
				Headers: req.Headers,
				Stream:  streaming,
			})
			if err != nil {
				return err
			}

			res.status = resp.Status
			if !streaming {
				res.body = resp.Body
				return nil
			}

			defer resp.Stream.Close()
			reader := stream.New(g.endpoint.Name, resp.Stream, g.logger)
			text, err := reader.Drain(ctx, func(chunk string) {
				res.chunks = append(res.chunks, chunk)
				// Any caller that outlives the originator gets the
				// recorded replay instead of a live callback.
				if opts.OnChunk != nil && caller.Err() == nil {
					opts.OnChunk(chunk)
				}
			})
			res.text = text
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// callContext applies the overall deadline: the per-call override, else
// the endpoint default. A caller-supplied earlier deadline wins.
func (g *Gateway) callContext(ctx context.Context, opts *CallOptions) (context.Context, context.CancelFunc) {
	timeout := g.endpoint.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// mapWaitError converts a waiter's own context verdict into the taxonomy.
// The shared execution maps its errors itself; this only covers a caller
// whose wait ended before the execution settled.
func (g *Gateway) mapWaitError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return upstream.NewTimeout(g.endpoint.Name, g.endpoint.Timeout)
	case errors.Is(err, context.Canceled):
		return upstream.NewCancelled(g.endpoint.Name)
	default:
		return err
	}
}

// report records the outcome in metrics and, when configured, the journal.
// Neither can fail the call.
func (g *Gateway) report(requestID, mode string, duration time.Duration, coalesced bool, status int, callErr error) {
	g.metrics.RecordCall(g.endpoint.Name, duration, callErr == nil, mode)

	if g.journal == nil {
		return
	}
	entry := &journal.Entry{
		RequestID: requestID,
		Endpoint:  g.endpoint.Name,
		Mode:      mode,
		Outcome:   "success",
		Status:    status,
		Duration:  duration,
		Coalesced: coalesced,
	}
	if callErr != nil {
		entry.Outcome = upstream.KindOf(callErr).String()
		var uerr *upstream.Error
		if errors.As(callErr, &uerr) {
			entry.Status = uerr.Status
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.journal.Record(ctx, entry); err != nil {
		g.logger.Warn("failed to journal call outcome", "error", err)
	}
}
