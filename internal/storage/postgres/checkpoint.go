package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"eventScope/internal/checkpoint"
	"eventScope/internal/model"
)

var _ checkpoint.Store = (*Store)(nil)

// Get returns the stored checkpoint for key.
func (s *Store) Get(ctx context.Context, key model.ContractKey) (checkpoint.Checkpoint, bool, error) {
	var block, version int64
	var updatedAt time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT last_processed_block, version, updated_at
		FROM checkpoints WHERE chain_id=$1 AND contract_address=$2
	`, int64(key.ChainID), key.Address)
	if err := row.Scan(&block, &version, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return checkpoint.Empty(key), false, nil
		}
		return checkpoint.Checkpoint{}, false, fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	return checkpoint.Checkpoint{
		ChainID:            key.ChainID,
		Address:            key.Address,
		LastProcessedBlock: uint64(block),
		Version:            uint64(version),
		UpdatedAt:          updatedAt.UTC(),
	}, true, nil
}

// Advance writes the next checkpoint guarded by the version read in prev.
func (s *Store) Advance(ctx context.Context, prev checkpoint.Checkpoint, toBlock uint64) (checkpoint.Checkpoint, error) {
	key := prev.Key()
	stored, _, err := s.Get(ctx, key)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	next, write, err := checkpoint.NextAdvance(stored, prev, toBlock, time.Now())
	if err != nil || !write {
		return next, err
	}

	var tag pgconn.CommandTag
	if stored.Exists() {
		tag, err = s.pool.Exec(ctx, `
			UPDATE checkpoints
			SET last_processed_block=$3, version=$4, updated_at=$5
			WHERE chain_id=$1 AND contract_address=$2 AND version=$6
		`, int64(key.ChainID), key.Address, int64(next.LastProcessedBlock), int64(next.Version), next.UpdatedAt, int64(stored.Version))
	} else {
		tag, err = s.pool.Exec(ctx, `
			INSERT INTO checkpoints (chain_id, contract_address, last_processed_block, version, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (chain_id, contract_address) DO NOTHING
		`, int64(key.ChainID), key.Address, int64(next.LastProcessedBlock), int64(next.Version), next.UpdatedAt)
	}
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("advance checkpoint %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: %s version %d superseded", checkpoint.ErrConcurrency, key, stored.Version)
	}
	return next, nil
}

// Reset overwrites the checkpoint and bumps its version.
func (s *Store) Reset(ctx context.Context, key model.ContractKey, block uint64) (checkpoint.Checkpoint, error) {
	var version int64
	var updatedAt time.Time
	row := s.pool.QueryRow(ctx, `
		INSERT INTO checkpoints (chain_id, contract_address, last_processed_block, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (chain_id, contract_address) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block,
			version = checkpoints.version + 1,
			updated_at = now()
		RETURNING version, updated_at
	`, int64(key.ChainID), key.Address, int64(block))
	if err := row.Scan(&version, &updatedAt); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("reset checkpoint %s: %w", key, err)
	}
	return checkpoint.Checkpoint{
		ChainID:            key.ChainID,
		Address:            key.Address,
		LastProcessedBlock: block,
		Version:            uint64(version),
		UpdatedAt:          updatedAt.UTC(),
	}, nil
}

// Delete removes the checkpoint for key.
func (s *Store) Delete(ctx context.Context, key model.ContractKey) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE chain_id=$1 AND contract_address=$2`, int64(key.ChainID), key.Address)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", key, err)
	}
	return nil
}

// List returns every checkpoint ordered by chain and address.
func (s *Store) List(ctx context.Context) ([]checkpoint.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, contract_address, last_processed_block, version, updated_at
		FROM checkpoints ORDER BY chain_id, contract_address
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []checkpoint.Checkpoint
	for rows.Next() {
		var chainID, block, version int64
		var address string
		var updatedAt time.Time
		if err := rows.Scan(&chainID, &address, &block, &version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, checkpoint.Checkpoint{
			ChainID:            uint64(chainID),
			Address:            address,
			LastProcessedBlock: uint64(block),
			Version:            uint64(version),
			UpdatedAt:          updatedAt.UTC(),
		})
	}
	return out, rows.Err()
}
