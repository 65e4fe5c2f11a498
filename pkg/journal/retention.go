package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig configures the periodic cleanup of old outcomes.
type RetentionConfig struct {
	// Schedule is a cron expression, default "17 3 * * *" (daily at 03:17).
	Schedule string

	// MaxAge is how long outcomes are kept. Default 7 days.
	MaxAge time.Duration

	// SweepTimeout bounds each cleanup run. Default 1 minute.
	SweepTimeout time.Duration

	// Logger receives sweep results. Default slog.Default().
	Logger *slog.Logger
}

// Retention runs scheduled cleanup sweeps against a Journal.
type Retention struct {
	journal *Journal
	cfg     RetentionConfig
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewRetention creates a retention sweeper for the journal.
func NewRetention(j *Journal, cfg RetentionConfig) (*Retention, error) {
	if j == nil {
		return nil, fmt.Errorf("journal cannot be nil")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "17 3 * * *"
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.SweepTimeout == 0 {
		cfg.SweepTimeout = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Retention{
		journal: j,
		cfg:     cfg,
		cron:    cron.New(),
		logger:  logger,
	}

	if _, err := r.cron.AddFunc(cfg.Schedule, r.sweep); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Schedule, err)
	}

	return r, nil
}

// Start begins the schedule. Sweeps run on the cron's own goroutine.
func (r *Retention) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for any running sweep to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Retention) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SweepTimeout)
	defer cancel()

	cutoff := time.Now().Add(-r.cfg.MaxAge)
	deleted, err := r.journal.Cleanup(ctx, cutoff)
	if err != nil {
		r.logger.Error("journal retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		r.logger.Info("journal retention sweep completed",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339))
	}
}
