package main

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"eventScope/internal/model"
)

// logFilter keeps logs whose address and topic0 are in the configured sets.
// An empty set matches everything.
type logFilter struct {
	addresses map[string]bool
	topics    map[string]bool
}

func newLogFilter(addresses []common.Address, topics []common.Hash) logFilter {
	f := logFilter{addresses: make(map[string]bool), topics: make(map[string]bool)}
	for _, a := range addresses {
		f.addresses[model.NormalizeAddress(a.Hex())] = true
	}
	for _, t := range topics {
		f.topics[t.Hex()] = true
	}
	return f
}

func (f logFilter) match(l model.RawLog) bool {
	if len(f.addresses) > 0 && !f.addresses[model.NormalizeAddress(l.Address)] {
		return false
	}
	if len(f.topics) > 0 && !f.topics[strings.ToLower(l.Topic0())] {
		return false
	}
	return true
}
