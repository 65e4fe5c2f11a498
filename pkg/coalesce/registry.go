package coalesce

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultGraceWindow is how long a settled entry lingers in the registry
// to absorb near-simultaneous duplicate arrivals.
const DefaultGraceWindow = 50 * time.Millisecond

// outcome is the settled result shared by every waiter on an entry.
type outcome[T any] struct {
	value T
	err   error
}

// entry is one in-flight (or recently settled) logical request.
type entry[T any] struct {
	done      chan struct{}
	result    outcome[T]
	waiters   int
	settled   bool
	cancel    context.CancelFunc
	createdAt time.Time
}

// Registry coalesces concurrent submissions that share a fingerprint.
// The check-then-insert of a fingerprint is atomic under mu, so at most
// one execution per fingerprint is in flight at any instant.
type Registry[T any] struct {
	grace  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry[T]
}

// NewRegistry creates an empty registry. A non-positive grace falls back
// to DefaultGraceWindow.
func NewRegistry[T any](grace time.Duration, logger *slog.Logger) *Registry[T] {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[T]{
		grace:   grace,
		logger:  logger,
		entries: make(map[string]*entry[T]),
	}
}

// Submit executes fn for the fingerprint, or attaches to an execution
// already in flight. The returned shared flag reports whether this caller
// attached to an existing entry rather than originating one.
//
// An originating caller's deadline carries over onto the execution
// context. Cancellation does not: when the caller's context fires before
// the shared execution settles, Submit returns ctx.Err() and detaches,
// and the execution continues for the remaining waiters, aborted only
// when none remain.
func (r *Registry[T]) Submit(ctx context.Context, fingerprint string, fn func(context.Context) (T, error)) (value T, shared bool, err error) {
	r.mu.Lock()
	if e, ok := r.entries[fingerprint]; ok {
		e.waiters++
		r.mu.Unlock()
		value, err = r.wait(ctx, fingerprint, e)
		return value, true, err
	}

	// Detach cancellation from this caller: a waiter leaving must not
	// abort work other waiters depend on. The caller's deadline still
	// bounds the execution so a slow upstream times out rather than
	// running unobserved.
	base := context.WithoutCancel(ctx)
	var execCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		execCtx, cancel = context.WithDeadline(base, deadline)
	} else {
		execCtx, cancel = context.WithCancel(base)
	}
	e := &entry[T]{
		done:      make(chan struct{}),
		waiters:   1,
		cancel:    cancel,
		createdAt: time.Now(),
	}
	r.entries[fingerprint] = e
	r.mu.Unlock()

	go func() {
		v, execErr := fn(execCtx)
		r.settle(fingerprint, e, outcome[T]{value: v, err: execErr})
	}()

	value, err = r.wait(ctx, fingerprint, e)
	return value, false, err
}

// Len returns the number of live entries, settled-but-in-grace included.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// wait blocks until the entry settles or the caller's context fires.
func (r *Registry[T]) wait(ctx context.Context, fingerprint string, e *entry[T]) (T, error) {
	select {
	case <-e.done:
		return e.result.value, e.result.err
	case <-ctx.Done():
		r.detach(fingerprint, e)
		var zero T
		return zero, ctx.Err()
	}
}

// settle records the outcome, releases all waiters, and schedules removal
// after the grace window.
func (r *Registry[T]) settle(fingerprint string, e *entry[T], result outcome[T]) {
	r.mu.Lock()
	e.result = result
	e.settled = true
	close(e.done)
	r.mu.Unlock()

	// The execution context is no longer needed once settled.
	e.cancel()

	time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		if cur, ok := r.entries[fingerprint]; ok && cur == e {
			delete(r.entries, fingerprint)
		}
		r.mu.Unlock()
	})
}

// detach removes one waiter. When the last waiter leaves an unsettled
// entry, the shared execution is aborted and the entry removed so a fresh
// submission starts over.
func (r *Registry[T]) detach(fingerprint string, e *entry[T]) {
	r.mu.Lock()
	e.waiters--
	abort := e.waiters <= 0 && !e.settled
	if abort {
		if cur, ok := r.entries[fingerprint]; ok && cur == e {
			delete(r.entries, fingerprint)
		}
	}
	r.mu.Unlock()

	if abort {
		r.logger.Debug("all waiters detached, aborting coalesced execution")
		e.cancel()
	}
}
