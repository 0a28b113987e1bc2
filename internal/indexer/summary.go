package indexer

import (
	"time"

	"go.uber.org/zap"
)

// ContractResult is the outcome of one contract in a run.
type ContractResult struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"contract_address"`
	Name           string `json:"name,omitempty"`
	State          State  `json:"state"`
	Reason         string `json:"reason,omitempty"`
	Ranges         int    `json:"ranges"`
	FromBlock      uint64 `json:"from_block,omitempty"`
	ToBlock        uint64 `json:"to_block,omitempty"`
	RawLogs        int    `json:"raw_logs"`
	Decoded        int    `json:"decoded"`
	DecodeFailures int    `json:"decode_failures"`
	Unmatched      int    `json:"unmatched"`
	FetchRequests  int    `json:"fetch_requests"`
	FetchRetries   int    `json:"fetch_retries"`
	Error          string `json:"error,omitempty"`
}

// RunSummary enumerates the terminal state of every contract in a run.
type RunSummary struct {
	RunID      string           `json:"run_id"`
	RunAt      time.Time        `json:"run_at"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Results    []ContractResult `json:"results"`
}

// Succeeded is true when no contract FAILED.
func (s RunSummary) Succeeded() bool {
	for _, r := range s.Results {
		if r.State == StateFailed {
			return false
		}
	}
	return true
}

// Count returns the number of contracts that ended in state.
func (s RunSummary) Count(state State) int {
	n := 0
	for _, r := range s.Results {
		if r.State == state {
			n++
		}
	}
	return n
}

// Log writes one line per contract and a closing run line.
func (s RunSummary) Log(logger *zap.Logger) {
	for _, r := range s.Results {
		fields := []zap.Field{
			zap.String("run_id", s.RunID),
			zap.Uint64("chain_id", r.ChainID),
			zap.String("contract", r.Address),
			zap.String("state", string(r.State)),
			zap.Int("ranges", r.Ranges),
			zap.Int("raw_logs", r.RawLogs),
			zap.Int("decoded", r.Decoded),
			zap.Int("decode_failures", r.DecodeFailures),
			zap.Int("unmatched", r.Unmatched),
			zap.Int("fetch_retries", r.FetchRetries),
		}
		if r.Reason != "" {
			fields = append(fields, zap.String("reason", r.Reason))
		}
		if r.Error != "" {
			fields = append(fields, zap.String("error", r.Error))
		}
		logger.Info("contract result", fields...)
	}
	logger.Info("run complete",
		zap.String("run_id", s.RunID),
		zap.Int("contracts", len(s.Results)),
		zap.Int("done", s.Count(StateDone)),
		zap.Int("skipped", s.Count(StateSkipped)),
		zap.Int("failed", s.Count(StateFailed)),
		zap.Duration("duration", s.FinishedAt.Sub(s.StartedAt)),
	)
}
