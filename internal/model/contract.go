package model

import (
	"fmt"
	"strings"
)

// ContractKey identifies a contract on a chain.
type ContractKey struct {
	ChainID uint64 `json:"chain_id"`
	Address string `json:"contract_address"`
}

// NewContractKey builds a key with a normalized address.
func NewContractKey(chainID uint64, address string) ContractKey {
	return ContractKey{ChainID: chainID, Address: NormalizeAddress(address)}
}

func (k ContractKey) String() string {
	return fmt.Sprintf("%d:%s", k.ChainID, k.Address)
}

// ContractConfig describes one contract to ingest. It is supplied externally
// and never mutated by the pipeline.
type ContractConfig struct {
	ChainID    uint64 `json:"chain_id" yaml:"chain_id"`
	Address    string `json:"contract_address" yaml:"address"`
	ABI        string `json:"abi" yaml:"abi"`
	StartBlock uint64 `json:"start_block" yaml:"start_block"`
	EndBlock   uint64 `json:"end_block,omitempty" yaml:"end_block"`
	Name       string `json:"name,omitempty" yaml:"name"`
}

// Key returns the contract identity.
func (c ContractConfig) Key() ContractKey {
	return NewContractKey(c.ChainID, c.Address)
}

// HasEndBlock reports whether the contract is a bounded backfill.
func (c ContractConfig) HasEndBlock() bool {
	return c.EndBlock > 0
}

// NormalizeAddress lowercases a hex address and ensures the 0x prefix.
func NormalizeAddress(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return ""
	}
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return address
}
