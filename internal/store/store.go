// Package store persists decoded blocks, extrinsics, events, accounts, and
// indexer progress to Postgres.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store wraps a pgxpool.Pool with the per-table upsert methods the
// ingestion pipeline, plugin registry, and account-state refresher need.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// New connects to Postgres using a libpq-style connection string.
func New(ctx context.Context, connString string, logger *zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pgxpool for callers that need to run their
// own transaction spanning multiple Store methods (internal/processor's
// per-block transaction).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// schema is the DDL Migrate applies. It is a flat, idempotent script
// rather than a migration framework, so it can run on every process start.
const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	height            BIGINT PRIMARY KEY,
	hash              TEXT NOT NULL,
	parent_hash       TEXT NOT NULL,
	state_root        TEXT,
	extrinsics_root   TEXT,
	spec_version      INT NOT NULL,
	validator_id      TEXT,
	timestamp_ms      BIGINT,
	status            TEXT NOT NULL DEFAULT 'best',
	extrinsic_count   INT NOT NULL DEFAULT 0,
	event_count       INT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extrinsics (
	block_height  BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE,
	index         INT NOT NULL,
	hash          TEXT,
	signer        TEXT,
	module        TEXT NOT NULL,
	call          TEXT NOT NULL,
	args          JSONB NOT NULL,
	nonce         BIGINT,
	tip           NUMERIC,
	success       BOOLEAN,
	fee           NUMERIC,
	PRIMARY KEY (block_height, index)
);

CREATE TABLE IF NOT EXISTS events (
	block_height      BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE,
	index             INT NOT NULL,
	extrinsic_index   INT,
	phase             TEXT NOT NULL,
	module            TEXT NOT NULL,
	name              TEXT NOT NULL,
	args              JSONB NOT NULL,
	topics            TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (block_height, index)
);

CREATE TABLE IF NOT EXISTS accounts (
	account_id          TEXT PRIMARY KEY,
	first_seen_block    BIGINT NOT NULL,
	last_active_block   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS account_balances (
	account_id    TEXT PRIMARY KEY REFERENCES accounts(account_id) ON DELETE CASCADE,
	free          NUMERIC NOT NULL,
	reserved      NUMERIC NOT NULL,
	frozen        NUMERIC NOT NULL DEFAULT 0,
	flags         NUMERIC NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS indexer_state (
	id               BOOLEAN PRIMARY KEY DEFAULT true CHECK (id),
	last_finalized   BIGINT NOT NULL DEFAULT 0,
	last_best        BIGINT NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extension_migrations (
	extension_id   TEXT NOT NULL,
	version        INT NOT NULL,
	applied_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (extension_id, version)
);

CREATE TABLE IF NOT EXISTS activity_feed (
	id              BIGSERIAL PRIMARY KEY,
	block_height    BIGINT NOT NULL,
	kind            TEXT NOT NULL,
	module          TEXT NOT NULL,
	name            TEXT NOT NULL,
	payload         JSONB NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates every table this module owns if it does not already
// exist. Safe to call on every process start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate schema: %w", err)
	}
	s.logger.Info().Msg("store schema migration applied")
	return nil
}
