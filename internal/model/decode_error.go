package model

import "fmt"

// DecodeError records a decode failure for a single log. It is both an error
// and the row written to the decode error stream.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	Address     string `json:"contract_address"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"transaction_hash"`
	LogIndex    uint64 `json:"log_index"`
	Topic0      string `json:"topic0"`
	EventName   string `json:"event_name,omitempty"`
	Reason      string `json:"error"`

	err error
}

// NewDecodeError tags err with the identity of log.
func NewDecodeError(log RawLog, eventName string, err error) *DecodeError {
	return &DecodeError{
		ChainID:     log.ChainID,
		Address:     log.Address,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Topic0:      log.Topic0(),
		EventName:   eventName,
		Reason:      err.Error(),
		err:         err,
	}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log %s:%d: %s", e.TxHash, e.LogIndex, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.err
}
