package decoder

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"eventScope/internal/eventabi"
	"eventScope/internal/model"
	"eventScope/internal/registry"
)

// Resolver resolves a contract event by topic0.
type Resolver interface {
	Resolve(ctx context.Context, key model.ContractKey, topic0 common.Hash) (*eventabi.EventSpec, error)
}

// BatchResult collects the outcome of decoding a batch of logs.
type BatchResult struct {
	Events    []model.DecodedEvent
	Failures  []model.DecodeError
	Unmatched int
}

// Attempted returns the number of logs that had a matching event spec.
func (r BatchResult) Attempted() int {
	return len(r.Events) + len(r.Failures)
}

// FailureRate returns failures over attempted decodes. Unmatched logs are
// not counted.
func (r BatchResult) FailureRate() float64 {
	attempted := r.Attempted()
	if attempted == 0 {
		return 0
	}
	return float64(len(r.Failures)) / float64(attempted)
}

// DecodeBatch decodes logs in order. Per-log failures are collected and never
// stop the batch; logs with no matching event are counted as unmatched. An
// error is returned only when the resolver cannot load the contract ABI.
func DecodeBatch(ctx context.Context, resolver Resolver, logs []model.RawLog) (BatchResult, error) {
	var result BatchResult
	for _, log := range logs {
		if len(log.Topics) == 0 {
			result.Unmatched++
			continue
		}
		topic0, err := ParseTopic(log.Topics[0])
		if err != nil {
			result.Failures = append(result.Failures, *model.NewDecodeError(log, "", err))
			continue
		}

		spec, err := resolver.Resolve(ctx, model.NewContractKey(log.ChainID, log.Address), topic0)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				result.Unmatched++
				continue
			}
			return result, err
		}

		event, err := Decode(log, spec)
		if err != nil {
			var decodeErr *model.DecodeError
			if errors.As(err, &decodeErr) {
				result.Failures = append(result.Failures, *decodeErr)
				continue
			}
			return result, err
		}
		result.Events = append(result.Events, event)
	}
	return result, nil
}
