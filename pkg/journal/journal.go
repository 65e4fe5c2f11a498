package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Entry is one settled call outcome.
type Entry struct {
	// RequestID identifies the logical call.
	RequestID string `json:"request_id"`

	// Endpoint is the upstream the call was addressed to.
	Endpoint string `json:"endpoint"`

	// Mode is "complete", "stream", or "health".
	Mode string `json:"mode"`

	// Outcome is "success" or the failure kind name.
	Outcome string `json:"outcome"`

	// Status is the upstream HTTP status, 0 when the call never reached
	// the upstream.
	Status int `json:"status"`

	// Duration is the caller-observed latency.
	Duration time.Duration `json:"duration"`

	// Coalesced reports whether the caller attached to an in-flight
	// execution.
	Coalesced bool `json:"coalesced"`

	// CreatedAt is when the outcome was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Config configures a Journal.
type Config struct {
	// Path is the SQLite database file path.
	Path string

	// CheckpointInterval is how often the WAL is passively checkpointed.
	// Default 5 minutes.
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default 5 seconds.
	BusyTimeout time.Duration
}

// Journal is a durable record of call outcomes.
type Journal struct {
	db        *sql.DB
	done      chan struct{}
	closeOnce sync.Once

	recordStmt  *sql.Stmt
	recentStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// Open opens (creating if needed) the journal at path with defaults.
func Open(path string) (*Journal, error) {
	return OpenWithConfig(Config{Path: path})
}

// OpenWithConfig opens the journal with explicit settings.
func OpenWithConfig(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{
		db:   db,
		done: make(chan struct{}),
	}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := j.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go j.checkpointLoop(cfg.CheckpointInterval)

	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS call_outcomes (
		request_id  TEXT NOT NULL,
		endpoint    TEXT NOT NULL,
		mode        TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		status      INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		coalesced   INTEGER NOT NULL,
		created_at  INTEGER NOT NULL,
		PRIMARY KEY (request_id)
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_endpoint ON call_outcomes(endpoint, created_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_created ON call_outcomes(created_at);
	`

	_, err := j.db.Exec(schema)
	return err
}

func (j *Journal) prepareStatements() error {
	var err error

	j.recordStmt, err = j.db.Prepare(`
		INSERT INTO call_outcomes (request_id, endpoint, mode, outcome, status, duration_ms, coalesced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record statement: %w", err)
	}

	j.recentStmt, err = j.db.Prepare(`
		SELECT request_id, endpoint, mode, outcome, status, duration_ms, coalesced, created_at
		FROM call_outcomes
		WHERE endpoint = ?
		ORDER BY created_at DESC
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent statement: %w", err)
	}

	j.cleanupStmt, err = j.db.Prepare(`
		DELETE FROM call_outcomes
		WHERE created_at < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Record persists one outcome.
func (j *Journal) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.RequestID == "" {
		return fmt.Errorf("request id cannot be empty")
	}
	if entry.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	coalesced := 0
	if entry.Coalesced {
		coalesced = 1
	}

	_, err := j.recordStmt.ExecContext(ctx,
		entry.RequestID,
		entry.Endpoint,
		entry.Mode,
		entry.Outcome,
		entry.Status,
		entry.Duration.Milliseconds(),
		coalesced,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes for the endpoint, newest first.
func (j *Journal) Recent(ctx context.Context, endpoint string, limit int) ([]*Entry, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.recentStmt.QueryContext(ctx, endpoint, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			entry      Entry
			durationMS int64
			coalesced  int
			createdAt  int64
		)
		if err := rows.Scan(
			&entry.RequestID,
			&entry.Endpoint,
			&entry.Mode,
			&entry.Outcome,
			&entry.Status,
			&durationMS,
			&coalesced,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.Coalesced = coalesced != 0
		entry.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// Cleanup removes outcomes recorded before the cutoff and returns how many
// were deleted.
func (j *Journal) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := j.cleanupStmt.ExecContext(ctx, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// Close releases the journal's resources. Idempotent.
func (j *Journal) Close() error {
	var closeErr error

	j.closeOnce.Do(func() {
		close(j.done)

		if j.recordStmt != nil {
			j.recordStmt.Close()
		}
		if j.recentStmt != nil {
			j.recentStmt.Close()
		}
		if j.cleanupStmt != nil {
			j.cleanupStmt.Close()
		}

		if j.db != nil {
			_, _ = j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = j.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic passive WAL checkpoints.
func (j *Journal) checkpointLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = j.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-j.done:
			return
		}
	}
}
