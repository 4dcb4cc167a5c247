// Package audit records execution metadata — never source code, never
// captured output — for post-hoc observability. It is best-effort: every
// failure is logged and swallowed, matching spec.md §7's CleanupError
// policy ("logged; never surfaced").
package audit

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Record is one execution's audit trail entry.
type Record struct {
	ExecutionID string
	Language    string
	Mode        string // "batch" | "interactive"
	Status      string
	ExitCode    int
	DurationMs  int64
}

// DSN holds the connection parameters for the audit database.
type DSN struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Recorder writes Records to Postgres via a pooled connection. A nil
// *Recorder is valid and turns Record into a no-op, so the orchestrator
// runs unchanged when no audit database is configured.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

const pingTimeout = 10 * time.Second

// NewRecorder opens a connection pool and ensures the audit table exists.
func NewRecorder(ctx context.Context, dsn DSN, logger *zerolog.Logger) (*Recorder, error) {
	host := net.JoinHostPort(dsn.Host, strconv.Itoa(dsn.Port))
	encodedPassword := url.QueryEscape(dsn.Password)

	connString := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		dsn.User, encodedPassword, host, dsn.Name, dsn.SSLMode)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("audit: parsing dsn: %w", err)
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "executioner-audit"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("audit: creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: creating table: %w", err)
	}

	logger.Info().Msg("audit database connection established")
	return &Recorder{pool: pool, logger: logger}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS execution_audit (
	execution_id TEXT PRIMARY KEY,
	language     TEXT NOT NULL,
	mode         TEXT NOT NULL,
	status       TEXT NOT NULL,
	exit_code    INTEGER NOT NULL,
	duration_ms  BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Record writes one audit entry. Failures are logged, never returned — an
// audit outage must never affect execution results.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil {
		return
	}

	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.pool.Exec(insertCtx,
		`INSERT INTO execution_audit (execution_id, language, mode, status, exit_code, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (execution_id) DO NOTHING`,
		rec.ExecutionID, rec.Language, rec.Mode, rec.Status, rec.ExitCode, rec.DurationMs,
	)
	if err != nil {
		r.logger.Warn().Err(err).Str("execution_id", rec.ExecutionID).Msg("audit record failed")
	}
}

// Close releases the connection pool. Safe to call on a nil Recorder.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.pool.Close()
}
