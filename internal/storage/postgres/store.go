package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		chain_id BIGINT NOT NULL,
		contract_address TEXT NOT NULL,
		last_processed_block BIGINT NOT NULL,
		version BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, contract_address)
	)`,
	`CREATE TABLE IF NOT EXISTS contracts (
		chain_id BIGINT NOT NULL,
		contract_address TEXT NOT NULL,
		abi TEXT NOT NULL,
		start_block BIGINT NOT NULL DEFAULT 0,
		end_block BIGINT,
		name TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT true,
		PRIMARY KEY (chain_id, contract_address)
	)`,
	`CREATE TABLE IF NOT EXISTS raw_logs (
		chain_id BIGINT NOT NULL,
		contract_address TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		block_hash TEXT,
		block_timestamp BIGINT NOT NULL,
		transaction_hash TEXT NOT NULL,
		transaction_index BIGINT NOT NULL,
		log_index BIGINT NOT NULL,
		topics TEXT[] NOT NULL,
		data TEXT NOT NULL,
		removed BOOLEAN NOT NULL DEFAULT false,
		run_id TEXT NOT NULL DEFAULT '',
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS raw_logs_contract_block_idx
		ON raw_logs (chain_id, contract_address, block_number)`,
	`CREATE TABLE IF NOT EXISTS decoded_events (
		chain_id BIGINT NOT NULL,
		contract_address TEXT NOT NULL,
		event_name TEXT NOT NULL,
		signature TEXT NOT NULL,
		transaction_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		block_number BIGINT NOT NULL,
		block_timestamp BIGINT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (chain_id, transaction_hash, log_index)
	)`,
	`CREATE TABLE IF NOT EXISTS decode_errors (
		chain_id BIGINT NOT NULL,
		contract_address TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		transaction_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		topic0 TEXT NOT NULL,
		event_name TEXT NOT NULL,
		error TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Store provides Postgres persistence for checkpoints, contracts and the
// record streams.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables used by the store if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
