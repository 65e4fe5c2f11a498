package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/solstice-hq/aegis/pkg/upstream"
)

// State is the breaker's current mode.
type State int

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits exactly one trial call.
	StateHalfOpen
)

// String returns the state name used in logs, metrics, and errors.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Settings configures one Breaker. Zero values fall back to the defaults
// noted on each field.
type Settings struct {
	// Endpoint names the failure domain this breaker protects.
	Endpoint string

	// FailureRateThreshold is the failure fraction (0..1] at which the
	// breaker opens. Default 0.5.
	FailureRateThreshold float64

	// MinimumCalls is the call volume that must be observed within the
	// window before the rate is evaluated. Default 10.
	MinimumCalls int

	// Window is the rolling window span. Default 10s.
	Window time.Duration

	// Buckets is the number of window buckets. Default 10.
	Buckets int

	// Cooldown is how long the breaker stays open before admitting a
	// half-open probe. Default 30s.
	Cooldown time.Duration

	// OnStateChange, when set, observes every transition. It is invoked
	// outside the breaker's lock, once per transition, in transition
	// order.
	OnStateChange func(endpoint string, from, to State)

	// Logger receives transition logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// Breaker is a failure-isolation state machine for one upstream endpoint.
// All state is owned by the breaker and mutated only through Call.
type Breaker struct {
	settings Settings
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	window   *window
	openedAt time.Time
	probing  bool

	// clock is replaced in tests.
	clock func() time.Time
}

// New creates a Breaker in the closed state.
func New(settings Settings) *Breaker {
	if settings.FailureRateThreshold <= 0 {
		settings.FailureRateThreshold = 0.5
	}
	if settings.MinimumCalls <= 0 {
		settings.MinimumCalls = 10
	}
	if settings.Window <= 0 {
		settings.Window = 10 * time.Second
	}
	if settings.Buckets <= 0 {
		settings.Buckets = 10
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Breaker{
		settings: settings,
		logger:   logger.With("endpoint", settings.Endpoint),
		state:    StateClosed,
		window:   newWindow(settings.Window, settings.Buckets),
		clock:    time.Now,
	}
}

// Call wraps a single upstream invocation. When the breaker is open the
// call is rejected with an unavailable error without invoking fn. The
// outcome of fn updates the breaker's counters unless the upstream
// taxonomy classifies it as neutral (caller cancellation).
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current mode. Side-effect-free except that an elapsed
// cooldown is not observed until the next Call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns the success and failure totals in the current window.
func (b *Breaker) Counts() (successes, failures int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window.totals(b.clock())
}

// allow decides whether a call may proceed, performing the OPEN -> HALF_OPEN
// transition when the cooldown has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	var notify func()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil

	case StateOpen:
		if b.clock().Sub(b.openedAt) < b.settings.Cooldown {
			b.mu.Unlock()
			return upstream.NewUnavailable(b.settings.Endpoint, StateOpen.String())
		}
		notify = b.transitionLocked(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
		return nil

	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return upstream.NewUnavailable(b.settings.Endpoint, StateHalfOpen.String())
		}
		b.probing = true
		b.mu.Unlock()
		return nil
	}

	b.mu.Unlock()
	return nil
}

// record updates the counters with one call outcome and performs any
// resulting transition.
func (b *Breaker) record(err error) {
	failure := err != nil && upstream.CountsAsFailure(err)
	neutral := err != nil && !failure

	b.mu.Lock()
	var notify func()

	switch b.state {
	case StateClosed:
		if neutral {
			break
		}
		now := b.clock()
		b.window.add(now, !failure)
		successes, failures := b.window.totals(now)
		total := successes + failures
		if total >= int64(b.settings.MinimumCalls) {
			rate := float64(failures) / float64(total)
			if rate >= b.settings.FailureRateThreshold {
				b.openedAt = now
				notify = b.transitionLocked(StateOpen)
			}
		}

	case StateHalfOpen:
		b.probing = false
		switch {
		case neutral:
			// The probe proved nothing; the next call probes again.
		case failure:
			b.openedAt = b.clock()
			b.window.reset()
			notify = b.transitionLocked(StateOpen)
		default:
			b.window.reset()
			notify = b.transitionLocked(StateClosed)
		}

	case StateOpen:
		// A call admitted before the breaker opened settled late. Its
		// outcome no longer changes the verdict; nothing to update.
	}

	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// transitionLocked flips the state and returns the observer notification to
// run after the lock is released. Caller must hold mu.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to

	b.logger.Info("circuit breaker state change",
		"from", from.String(),
		"to", to.String(),
	)

	cb := b.settings.OnStateChange
	if cb == nil {
		return nil
	}
	endpoint := b.settings.Endpoint
	return func() { cb(endpoint, from, to) }
}
