package admission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/solstice-hq/aegis/pkg/upstream"
)

// Config configures one Limiter.
type Config struct {
	// Endpoint names the upstream this limiter protects.
	Endpoint string

	// Capacity is the maximum number of concurrently executing calls.
	// Default 8.
	Capacity int

	// MaxQueue is the maximum number of queued calls across both lanes.
	// Default 64.
	MaxQueue int

	// QueueTimeout is how long a queued call waits for admission before
	// failing. Default 10s. Overridable per call.
	QueueTimeout time.Duration

	// Logger receives queue events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Options are per-call admission options.
type Options struct {
	// Priority places the call in the priority lane, which is drained
	// before the normal lane.
	Priority bool

	// QueueTimeout overrides the limiter's queue timeout when positive.
	QueueTimeout time.Duration
}

// Status is a point-in-time snapshot of the limiter.
type Status struct {
	// Depth is the number of queued calls across both lanes.
	Depth int `json:"depth"`

	// InFlight is the number of currently executing calls.
	InFlight int `json:"in_flight"`

	// Capacity is the configured concurrency bound.
	Capacity int `json:"capacity"`
}

// waiter states. A waiter moves waiting -> admitted exactly once, or
// waiting -> abandoned exactly once; the two are mutually exclusive.
const (
	waiting = iota
	admitted
	abandoned
)

type waiter struct {
	admit     chan struct{}
	displaced chan struct{}
	state     int
	priority  bool
	enqueued  time.Time
}

// Limiter bounds concurrent execution against one upstream. The inFlight
// counter and both lanes are mutated only under mu, making admission and
// completion atomic relative to each other.
type Limiter struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	inFlight int
	priority []*waiter
	normal   []*waiter
}

// New creates a Limiter with no calls in flight.
func New(cfg Config) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 8
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 64
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		cfg:    cfg,
		logger: logger.With("endpoint", cfg.Endpoint),
	}
}

// Execute runs fn when capacity allows, queueing the call otherwise. The
// invariant: the number of concurrently executing fns never exceeds the
// configured capacity.
func (l *Limiter) Execute(ctx context.Context, opts Options, fn func(context.Context) error) error {
	l.mu.Lock()

	if l.inFlight < l.cfg.Capacity {
		l.inFlight++
		l.mu.Unlock()
		return l.run(ctx, fn)
	}

	if l.queueLenLocked() >= l.cfg.MaxQueue {
		if !opts.Priority {
			l.mu.Unlock()
			return upstream.NewQueueFull(l.cfg.Endpoint)
		}
		if !l.displaceLocked() {
			// Queue full of priority waiters; nothing to displace.
			l.mu.Unlock()
			return upstream.NewQueueFull(l.cfg.Endpoint)
		}
	}

	w := &waiter{
		admit:     make(chan struct{}),
		displaced: make(chan struct{}),
		priority:  opts.Priority,
		enqueued:  time.Now(),
	}
	if opts.Priority {
		l.priority = append(l.priority, w)
	} else {
		l.normal = append(l.normal, w)
	}
	l.mu.Unlock()

	timeout := opts.QueueTimeout
	if timeout <= 0 {
		timeout = l.cfg.QueueTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.admit:
		return l.run(ctx, fn)

	case <-w.displaced:
		return upstream.NewQueueFull(l.cfg.Endpoint)

	case <-timer.C:
		if l.abandon(w) {
			l.logger.Debug("queued call timed out",
				"waited", time.Since(w.enqueued),
				"priority", w.priority,
			)
			return upstream.NewQueueTimeout(l.cfg.Endpoint, timeout)
		}
		// Admission raced the timer; the slot is ours, use it.
		<-w.admit
		return l.run(ctx, fn)

	case <-ctx.Done():
		if l.abandon(w) {
			// A deadline that expires while queued means the call never
			// got upstream capacity; a cancel is the caller's decision.
			if upstream.DeadlineExpired(ctx) {
				return upstream.NewQueueTimeout(l.cfg.Endpoint, time.Since(w.enqueued))
			}
			return upstream.NewCancelled(l.cfg.Endpoint)
		}
		// Admitted concurrently with cancellation: release the slot
		// without executing.
		<-w.admit
		l.release()
		return upstream.NewCancelled(l.cfg.Endpoint)
	}
}

// Status returns a snapshot of the queue. Side-effect-free.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Depth:    l.queueLenLocked(),
		InFlight: l.inFlight,
		Capacity: l.cfg.Capacity,
	}
}

// run executes fn and releases the slot when it settles.
func (l *Limiter) run(ctx context.Context, fn func(context.Context) error) error {
	defer l.release()
	return fn(ctx)
}

// release frees one slot and admits the next eligible waiter.
func (l *Limiter) release() {
	l.mu.Lock()
	l.inFlight--
	l.admitNextLocked()
	l.mu.Unlock()
}

// admitNextLocked admits the head of the priority lane, then the normal
// lane, while capacity allows. Caller must hold mu.
func (l *Limiter) admitNextLocked() {
	for l.inFlight < l.cfg.Capacity {
		var w *waiter
		switch {
		case len(l.priority) > 0:
			w = l.priority[0]
			l.priority = l.priority[1:]
		case len(l.normal) > 0:
			w = l.normal[0]
			l.normal = l.normal[1:]
		default:
			return
		}
		l.inFlight++
		w.state = admitted
		close(w.admit)
	}
}

// abandon removes w from its lane if it has not been admitted. Returns
// false when admission already happened, in which case the caller owns a
// slot and must run or release it.
func (l *Limiter) abandon(w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w.state != waiting {
		return false
	}
	w.state = abandoned
	l.removeLocked(w)
	return true
}

// displaceLocked cancels the oldest normal-lane waiter to make room for a
// priority enqueue. Caller must hold mu.
func (l *Limiter) displaceLocked() bool {
	if len(l.normal) == 0 {
		return false
	}
	w := l.normal[0]
	l.normal = l.normal[1:]
	w.state = abandoned
	close(w.displaced)
	l.logger.Debug("displaced normal-lane call for priority enqueue",
		"waited", time.Since(w.enqueued),
	)
	return true
}

func (l *Limiter) queueLenLocked() int {
	return len(l.priority) + len(l.normal)
}

func (l *Limiter) removeLocked(w *waiter) {
	lane := &l.normal
	if w.priority {
		lane = &l.priority
	}
	for i, cand := range *lane {
		if cand == w {
			*lane = append((*lane)[:i], (*lane)[i+1:]...)
			return
		}
	}
}
