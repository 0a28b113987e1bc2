package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"eventScope/internal/model"
)

// ParseAddresses converts address filter values into common.Address,
// dropping blanks and duplicates.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	seen := make(map[common.Address]bool, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, model.NewConfigError("address filter", fmt.Errorf("invalid address: %s", input))
		}
		addr := common.HexToAddress(input)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseTopic0 converts topic0 filter values into common.Hash. Each value must
// be a 32 byte hex string.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	topics := make([]common.Hash, 0, len(inputs))
	seen := make(map[common.Hash]bool, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, model.NewConfigError("topic0 filter", fmt.Errorf("invalid topic0: %s", input))
		}
		if len(data) != common.HashLength {
			return nil, model.NewConfigError("topic0 filter", fmt.Errorf("invalid topic0 length: %s", input))
		}
		topic := common.BytesToHash(data)
		if seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
	}
	return topics, nil
}
