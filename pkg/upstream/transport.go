package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of an error response body is read into the
// returned Error message.
const maxErrorBody = 4096

// Request is one call to the upstream. The gateway treats the payload as
// opaque bytes; schema translation happens outside the core.
type Request struct {
	// Method is the HTTP method, POST when empty.
	Method string

	// Path is appended to the endpoint's base URL.
	Path string

	// Body is the request payload.
	Body []byte

	// Headers are additional request headers. Authorization is set by the
	// transport from the endpoint's API key.
	Headers map[string]string

	// Stream requests an event-stream response. When set, the response
	// carries an open byte source instead of a buffered body.
	Stream bool
}

// Response is the raw outcome of a successful (2xx) upstream call.
type Response struct {
	// Status is the HTTP status code.
	Status int

	// Header is the response header.
	Header http.Header

	// Body is the buffered response body. Nil for streaming responses.
	Body []byte

	// Stream is the open response body for streaming calls. The caller
	// owns it and must close it. Nil for buffered responses.
	Stream io.ReadCloser
}

// Transport sends one request to one upstream endpoint. Implementations
// map all failures into the package taxonomy; callers never see raw
// net/http errors.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// HTTPTransport is the production Transport. It owns a pooled
// http.Transport reused across calls to amortize connection setup.
type HTTPTransport struct {
	endpoint Endpoint
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPTransport creates a transport for one endpoint with connection
// pooling.
func NewHTTPTransport(endpoint Endpoint, logger *slog.Logger) *HTTPTransport {
	transport := &http.Transport{
		MaxIdleConns:        endpoint.MaxIdleConns,
		MaxIdleConnsPerHost: endpoint.MaxIdleConnsPerHost,
		IdleConnTimeout:     endpoint.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPTransport{
		endpoint: endpoint,
		// The overall deadline is carried by the call context, not the
		// client, so queued time is never double-counted.
		client: &http.Client{Transport: transport},
		logger: logger.With("endpoint", endpoint.Name),
	}
}

// Send performs exactly one attempt against the upstream.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, t.endpoint.BaseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if httpReq.Header.Get("Content-Type") == "" && req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if t.endpoint.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.endpoint.APIKey)
	}

	t.logger.Debug("sending request", "method", method, "path", req.Path, "stream", req.Stream)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.classifySendError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, NewStatusError(t.endpoint.Name, resp.StatusCode, string(body), retryAfter)
	}

	if req.Stream {
		return &Response{
			Status: resp.StatusCode,
			Header: resp.Header,
			Stream: resp.Body,
		}, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, t.classifySendError(ctx, err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

// classifySendError maps a network failure into the taxonomy, preferring
// the context's verdict: an expired deadline is a timeout, a cancel is a
// cancel, anything else is an upstream transport failure.
func (t *HTTPTransport) classifySendError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrorFromContext(ctx, t.endpoint.Name, t.endpoint.Timeout)
	}
	return NewTransportError(t.endpoint.Name, err)
}

// Close releases idle pooled connections.
func (t *HTTPTransport) Close() error {
	if transport, ok := t.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// parseRetryAfter parses the Retry-After header value. It supports both
// delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
