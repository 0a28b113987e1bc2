package model

import "fmt"

// RawLog is a chain log exactly as the provider returned it. Raw logs are
// persisted verbatim for traceability before decoding.
type RawLog struct {
	ChainID        uint64   `json:"chain_id"`
	Address        string   `json:"contract_address"`
	BlockNumber    uint64   `json:"block_number"`
	BlockHash      string   `json:"block_hash,omitempty"`
	BlockTimestamp uint64   `json:"block_timestamp"`
	TxHash         string   `json:"transaction_hash"`
	TxIndex        uint64   `json:"transaction_index"`
	LogIndex       uint64   `json:"log_index"`
	Topics         []string `json:"topics"`
	Data           string   `json:"data"`
	Removed        bool     `json:"removed,omitempty"`
	IngestedAt     string   `json:"ingested_at,omitempty"`
}

// ID returns the log identity used for downstream deduplication.
func (l RawLog) ID() string {
	return fmt.Sprintf("%s:%d", l.TxHash, l.LogIndex)
}

// Topic0 returns the first topic or an empty string for anonymous logs.
func (l RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return l.Topics[0]
}

// Less orders logs by (block_number, log_index).
func (l RawLog) Less(other RawLog) bool {
	if l.BlockNumber != other.BlockNumber {
		return l.BlockNumber < other.BlockNumber
	}
	return l.LogIndex < other.LogIndex
}
