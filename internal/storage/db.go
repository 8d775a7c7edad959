// Package storage provides the PostgreSQL persistence layer: user query
// sessions and published forecast records. Repositories accept a DBTX so the
// same query code runs against the pool, a single acquired connection or a
// transaction.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// DBTX is the minimal query surface shared by *pgxpool.Pool, *pgxpool.Conn
// and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool connects to Postgres and verifies the connection before returning.
func NewPool(ctx context.Context, cfg config.PostgresConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connection to Postgres failed: %w", err)
	}

	log.Info("Postgres pool initialized", "max_conns", cfg.MaxConns)
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS user_queries (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	query_text TEXT NOT NULL,
	response_text TEXT,
	response_time_seconds DOUBLE PRECISION,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_queries_user_created
	ON user_queries (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS forecasts (
	id BIGSERIAL PRIMARY KEY,
	forecast_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_forecasts_type_created
	ON forecasts (forecast_type, created_at DESC);
`

// EnsureSchema bootstraps the tables at startup. Idempotent.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema bootstrap failed: %w", err)
	}
	return nil
}
