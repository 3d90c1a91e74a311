package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturaIA/tax-extraction-service/internal/config"
	"github.com/facturaIA/tax-extraction-service/internal/logging"
)

var (
	ErrNotConfigured = errors.New("no database configuration")
	ErrNotFound      = errors.New("not found")
)

// Store persists documents, extraction results and reports in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	log  logging.Logger
}

// Open creates the connection pool and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logging.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Pool settings suit PgBouncer in transaction mode.
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 2
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log = log.Named("db")
	log.Info("db.pool.ready", logging.Int("max_conns", int(poolCfg.MaxConns)))
	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
	s.log.Info("db.pool.closed")
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS tax_documents (
	id               UUID PRIMARY KEY,
	tenant           TEXT NOT NULL,
	filename         TEXT NOT NULL,
	content_type     TEXT NOT NULL DEFAULT '',
	object_path      TEXT NOT NULL DEFAULT '',
	doc_context      TEXT NOT NULL DEFAULT '',
	taxpayer_name    TEXT NOT NULL,
	tax_year         INTEGER NOT NULL,
	total_income     DOUBLE PRECISION NOT NULL,
	total_expenses   DOUBLE PRECISION NOT NULL,
	total_deductions DOUBLE PRECISION NOT NULL,
	taxable_amount   DOUBLE PRECISION NOT NULL,
	tax_id           TEXT NOT NULL,
	business_type    TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	provider         TEXT NOT NULL DEFAULT '',
	stage            TEXT NOT NULL DEFAULT '',
	shape            TEXT NOT NULL DEFAULT '',
	attempts         TEXT[] NOT NULL DEFAULT '{}',
	diagnostics      JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tax_documents_tenant_created_idx ON tax_documents (tenant, created_at DESC);

CREATE TABLE IF NOT EXISTS tax_reports (
	id          UUID PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES tax_documents(id) ON DELETE CASCADE,
	tenant      TEXT NOT NULL,
	provider    TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	object_path TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
