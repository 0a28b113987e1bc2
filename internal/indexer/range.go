package indexer

import (
	"fmt"

	"eventScope/internal/model"
)

// PlanPolicy bounds the ranges produced by Plan.
type PlanPolicy struct {
	ConfirmationDepth uint64
	MaxRangeSize      uint64
}

// Plan returns the next block range to ingest for a contract, or false when
// there is nothing confirmed past the checkpoint.
func Plan(cfg model.ContractConfig, last uint64, hasCheckpoint bool, head uint64, policy PlanPolicy) (model.BlockRange, bool) {
	if policy.MaxRangeSize == 0 || head < policy.ConfirmationDepth {
		return model.BlockRange{}, false
	}

	from := cfg.StartBlock
	if hasCheckpoint {
		if last == ^uint64(0) {
			return model.BlockRange{}, false
		}
		if last+1 > from {
			from = last + 1
		}
	}

	to := head - policy.ConfirmationDepth
	if limit := from + policy.MaxRangeSize - 1; limit >= from && limit < to {
		to = limit
	}
	if cfg.HasEndBlock() && cfg.EndBlock < to {
		to = cfg.EndBlock
	}

	if from > to {
		return model.BlockRange{}, false
	}
	return model.BlockRange{From: from, To: to}, true
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]model.BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]model.BlockRange, 0)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= batchSize {
			end = to
		} else {
			end = start + batchSize - 1
		}
		ranges = append(ranges, model.BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
