package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository provides postgres-backed storage for conversations, draft
// actions, inventory reads and the message audit log.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects a pgx pool and verifies the connection.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool, logger: logger.With("component", "repo")}, nil
}

// Close releases the connection pool.
func (r *Repository) Close() { r.pool.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	context         JSONB NOT NULL DEFAULT '{}',
	trace           JSONB NOT NULL DEFAULT '{}',
	version         BIGINT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS draft_actions (
	id                    UUID PRIMARY KEY,
	conversation_id       TEXT NOT NULL,
	business_id           TEXT NOT NULL,
	intent                TEXT NOT NULL,
	seller                TEXT NOT NULL,
	buyer                 TEXT NOT NULL,
	product_id            BIGINT NOT NULL,
	product_name          TEXT NOT NULL,
	quantity              DOUBLE PRECISION NOT NULL,
	unit_price            DOUBLE PRECISION NOT NULL,
	amount                DOUBLE PRECISION NOT NULL,
	requires_prescription BOOLEAN NOT NULL DEFAULT FALSE,
	status                TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS draft_actions_open_per_conversation
	ON draft_actions (conversation_id) WHERE status = 'draft';

CREATE TABLE IF NOT EXISTS inventory (
	id                    BIGSERIAL PRIMARY KEY,
	business_id           TEXT NOT NULL,
	name                  TEXT NOT NULL,
	unit_price            DOUBLE PRECISION NOT NULL,
	stock                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	requires_prescription BOOLEAN NOT NULL DEFAULT FALSE,
	disease               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	direction       TEXT NOT NULL,
	category        TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_conversation_created
	ON messages (conversation_id, created_at);
`

// Migrate creates the schema if it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
