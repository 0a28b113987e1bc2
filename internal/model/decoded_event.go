package model

import "fmt"

// DecodedEvent is a log decoded against its contract ABI.
type DecodedEvent struct {
	ChainID        uint64                 `json:"chain_id"`
	Address        string                 `json:"contract_address"`
	EventName      string                 `json:"event_name"`
	Signature      string                 `json:"signature"`
	TxHash         string                 `json:"transaction_hash"`
	LogIndex       uint64                 `json:"log_index"`
	BlockNumber    uint64                 `json:"block_number"`
	BlockTimestamp uint64                 `json:"block_timestamp"`
	Payload        map[string]interface{} `json:"payload"`
}

// ID returns the (transaction_hash, log_index) dedup key.
func (e DecodedEvent) ID() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}
