package postgres

import (
	"context"
	"fmt"

	"eventScope/internal/model"
)

// LoadContracts returns the enabled rows of the contracts table.
func (s *Store) LoadContracts(ctx context.Context) ([]model.ContractConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, contract_address, abi, start_block, end_block, name
		FROM contracts WHERE enabled ORDER BY chain_id, contract_address
	`)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	var out []model.ContractConfig
	for rows.Next() {
		var (
			chainID, startBlock int64
			endBlock            *int64
			address, abiRef     string
			name                string
		)
		if err := rows.Scan(&chainID, &address, &abiRef, &startBlock, &endBlock, &name); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		c := model.ContractConfig{
			ChainID:    uint64(chainID),
			Address:    model.NormalizeAddress(address),
			ABI:        abiRef,
			StartBlock: uint64(startBlock),
			Name:       name,
		}
		if endBlock != nil {
			c.EndBlock = uint64(*endBlock)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
