package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"eventScope/internal/model"
)

type manifest struct {
	Contracts []model.ContractConfig `yaml:"contracts"`
}

// LoadContracts reads and validates a YAML contract manifest.
func LoadContracts(path string) ([]model.ContractConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewConfigError("contracts manifest", err)
	}
	return ParseContracts(data)
}

// ParseContracts decodes a manifest of the form
//
//	contracts:
//	  - chain_id: 1
//	    address: 0x...
//	    abi: builtin:erc20
//	    start_block: 100
func ParseContracts(data []byte) ([]model.ContractConfig, error) {
	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, model.NewConfigError("contracts manifest", fmt.Errorf("parse yaml: %w", err))
	}
	if err := ValidateContracts(m.Contracts); err != nil {
		return nil, err
	}
	for i := range m.Contracts {
		m.Contracts[i].Address = model.NormalizeAddress(m.Contracts[i].Address)
		m.Contracts[i].ABI = strings.TrimSpace(m.Contracts[i].ABI)
	}
	return m.Contracts, nil
}

// ValidateContracts rejects configurations that cannot be ingested.
func ValidateContracts(contracts []model.ContractConfig) error {
	if len(contracts) == 0 {
		return model.NewConfigError("contracts", fmt.Errorf("no contracts configured"))
	}
	seen := make(map[model.ContractKey]int, len(contracts))
	for i, c := range contracts {
		subject := fmt.Sprintf("contract %d", i)
		if c.Name != "" {
			subject = fmt.Sprintf("contract %q", c.Name)
		}
		if c.ChainID == 0 {
			return model.NewConfigError(subject, fmt.Errorf("chain_id is required"))
		}
		if !common.IsHexAddress(strings.TrimSpace(c.Address)) {
			return model.NewConfigError(subject, fmt.Errorf("invalid address %q", c.Address))
		}
		if strings.TrimSpace(c.ABI) == "" {
			return model.NewConfigError(subject, fmt.Errorf("abi reference is required"))
		}
		if c.HasEndBlock() && c.EndBlock < c.StartBlock {
			return model.NewConfigError(subject, fmt.Errorf("end_block %d is before start_block %d", c.EndBlock, c.StartBlock))
		}
		key := c.Key()
		if prev, ok := seen[key]; ok {
			return model.NewConfigError(subject, fmt.Errorf("duplicate of contract %d (%s)", prev, key))
		}
		seen[key] = i
	}
	return nil
}
