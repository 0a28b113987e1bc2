package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"eventScope/internal/model"
)

var (
	// ErrConcurrency is returned when the stored checkpoint changed since it
	// was read.
	ErrConcurrency = errors.New("checkpoint changed concurrently")
	// ErrRegression is returned when an advance would lower the checkpoint.
	ErrRegression = errors.New("checkpoint would move backwards")
)

// Checkpoint is the last fully persisted block of a contract. Version is
// bumped on every write; zero means no checkpoint is stored.
type Checkpoint struct {
	ChainID            uint64    `json:"chain_id"`
	Address            string    `json:"contract_address"`
	LastProcessedBlock uint64    `json:"last_processed_block"`
	Version            uint64    `json:"version"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Key returns the contract the checkpoint belongs to.
func (c Checkpoint) Key() model.ContractKey {
	return model.NewContractKey(c.ChainID, c.Address)
}

// Exists reports whether the checkpoint was read from the store.
func (c Checkpoint) Exists() bool {
	return c.Version > 0
}

// Empty returns the absent checkpoint for key.
func Empty(key model.ContractKey) Checkpoint {
	return Checkpoint{ChainID: key.ChainID, Address: key.Address}
}

// Store persists checkpoints keyed by contract.
type Store interface {
	Get(ctx context.Context, key model.ContractKey) (Checkpoint, bool, error)
	// Advance moves the checkpoint read as prev to toBlock. It fails with
	// ErrConcurrency when the stored version differs from prev.Version and
	// with ErrRegression when toBlock is below the stored block. Advancing to
	// the stored block is a no-op.
	Advance(ctx context.Context, prev Checkpoint, toBlock uint64) (Checkpoint, error)
	// Reset overwrites the checkpoint unconditionally, allowing it to move
	// backwards for re-ingestion.
	Reset(ctx context.Context, key model.ContractKey, block uint64) (Checkpoint, error)
	Delete(ctx context.Context, key model.ContractKey) error
	List(ctx context.Context) ([]Checkpoint, error)
}

// NextAdvance applies the advance rules to the stored checkpoint. write is
// false when the stored checkpoint already equals toBlock.
func NextAdvance(stored Checkpoint, prev Checkpoint, toBlock uint64, now time.Time) (next Checkpoint, write bool, err error) {
	if stored.Version != prev.Version {
		return stored, false, fmt.Errorf("%w: %s version %d, read %d", ErrConcurrency, prev.Key(), stored.Version, prev.Version)
	}
	if stored.Exists() {
		if toBlock < stored.LastProcessedBlock {
			return stored, false, fmt.Errorf("%w: %s at %d, advance to %d", ErrRegression, prev.Key(), stored.LastProcessedBlock, toBlock)
		}
		if toBlock == stored.LastProcessedBlock {
			return stored, false, nil
		}
	}
	key := prev.Key()
	return Checkpoint{
		ChainID:            key.ChainID,
		Address:            key.Address,
		LastProcessedBlock: toBlock,
		Version:            stored.Version + 1,
		UpdatedAt:          now.UTC(),
	}, true, nil
}

// NextReset returns the checkpoint written by a manual reset.
func NextReset(stored Checkpoint, key model.ContractKey, block uint64, now time.Time) Checkpoint {
	return Checkpoint{
		ChainID:            key.ChainID,
		Address:            key.Address,
		LastProcessedBlock: block,
		Version:            stored.Version + 1,
		UpdatedAt:          now.UTC(),
	}
}

// SortCheckpoints orders checkpoints by chain then address.
func SortCheckpoints(cps []Checkpoint) {
	sort.Slice(cps, func(i, j int) bool {
		if cps[i].ChainID != cps[j].ChainID {
			return cps[i].ChainID < cps[j].ChainID
		}
		return cps[i].Address < cps[j].Address
	})
}
