package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTransport(baseURL string) *HTTPTransport {
	return NewHTTPTransport(Endpoint{
		Name:    "test",
		BaseURL: baseURL,
		APIKey:  "sk-test-key",
		Timeout: 5 * time.Second,
	}, discardLogger())
}

func TestSendSetsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	defer tr.Close()

	resp, err := tr.Send(context.Background(), &Request{Path: "/v1/completions", Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if gotAuth != "Bearer sk-test-key" {
		t.Errorf("Authorization = %q, want bearer credential", gotAuth)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestSendStreamingSetsAcceptHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	defer tr.Close()

	resp, err := tr.Send(context.Background(), &Request{Path: "/v1/completions", Stream: true})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.Stream == nil {
		t.Fatal("streaming response should carry an open stream")
	}
	defer resp.Stream.Close()
	if resp.Body != nil {
		t.Error("streaming response should not buffer the body")
	}
}

func TestSendNon2xxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	defer tr.Close()

	_, err := tr.Send(context.Background(), &Request{Path: "/v1/completions"})
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if uerr.Kind != KindUpstream {
		t.Errorf("Kind = %v, want KindUpstream", uerr.Kind)
	}
	if uerr.Status != 429 {
		t.Errorf("Status = %d, want 429", uerr.Status)
	}
	if !uerr.Retryable {
		t.Error("429 should be retryable")
	}
	if uerr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", uerr.RetryAfter)
	}
}

func TestSendDeadlineMapsToTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Send(ctx, &Request{Path: "/v1/completions"})
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("KindOf = %v, want KindTimeout", got)
	}
	if !IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
}

func TestSendCancelMapsToCancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := tr.Send(ctx, &Request{Path: "/v1/completions"})
	if got := KindOf(err); got != KindCancelled {
		t.Errorf("KindOf = %v, want KindCancelled", got)
	}
	if CountsAsFailure(err) {
		t.Error("cancellation must not count as a breaker failure")
	}
}

func TestSendConnectionRefusedIsTransportError(t *testing.T) {
	// A closed server guarantees a refused connection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := newTestTransport(url)
	defer tr.Close()

	_, err := tr.Send(context.Background(), &Request{Path: "/v1/completions"})
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if uerr.Kind != KindUpstream {
		t.Errorf("Kind = %v, want KindUpstream", uerr.Kind)
	}
	if !uerr.Retryable {
		t.Error("transport failure should be retryable")
	}
	if uerr.Cause == nil {
		t.Error("transport failure should carry its cause")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty header = %v, want 0", got)
	}
	if got := parseRetryAfter("30"); got != 30*time.Second {
		t.Errorf("seconds = %v, want 30s", got)
	}
	date := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(date)
	if got < 55*time.Second || got > 65*time.Second {
		t.Errorf("http date = %v, want about a minute", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("garbage = %v, want 0", got)
	}
}
