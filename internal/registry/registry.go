package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"eventScope/internal/eventabi"
	"eventScope/internal/model"
)

// ErrNotFound is returned when a contract ABI has no event for a topic0.
var ErrNotFound = errors.New("event not found")

// Registry resolves (contract, topic0) pairs to compiled event specs. ABI
// documents are loaded on first use and cached for the registry lifetime.
// A load cut short by its context is not cached.
type Registry struct {
	source    Source
	contracts map[model.ContractKey]model.ContractConfig
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[model.ContractKey]*entry
}

type entry struct {
	mu     sync.Mutex
	loaded bool
	events map[common.Hash]*eventabi.EventSpec
	err    error
}

// New builds a registry over the given contracts.
func New(source Source, contracts []model.ContractConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	byKey := make(map[model.ContractKey]model.ContractConfig, len(contracts))
	for _, c := range contracts {
		byKey[c.Key()] = c
	}
	return &Registry{
		source:    source,
		contracts: byKey,
		logger:    logger,
		entries:   make(map[model.ContractKey]*entry),
	}
}

// Resolve returns the event spec for topic0 on the contract. It returns a
// *model.ConfigError when the contract ABI cannot be loaded or parsed and
// wraps ErrNotFound when the ABI has no matching event.
func (r *Registry) Resolve(ctx context.Context, key model.ContractKey, topic0 common.Hash) (*eventabi.EventSpec, error) {
	events, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	spec, ok := events[topic0]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, topic0.Hex(), key)
	}
	return spec, nil
}

// Events returns every resolvable event of the contract.
func (r *Registry) Events(ctx context.Context, key model.ContractKey) ([]*eventabi.EventSpec, error) {
	events, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]*eventabi.EventSpec, 0, len(events))
	for _, spec := range events {
		out = append(out, spec)
	}
	return out, nil
}

// Preload loads every configured contract ABI and returns the first failure.
func (r *Registry) Preload(ctx context.Context) error {
	for key := range r.contracts {
		if _, err := r.load(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) load(ctx context.Context, key model.ContractKey) (map[common.Hash]*eventabi.EventSpec, error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.events, e.err
	}
	events, err := r.loadContract(ctx, key)
	if err != nil && isContextError(err) {
		return nil, err
	}
	e.events, e.err, e.loaded = events, err, true
	return events, err
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Registry) loadContract(ctx context.Context, key model.ContractKey) (map[common.Hash]*eventabi.EventSpec, error) {
	contract, ok := r.contracts[key]
	if !ok {
		return nil, model.NewConfigError(key.String(), errors.New("contract is not configured"))
	}
	if contract.ABI == "" {
		return nil, model.NewConfigError(key.String(), errors.New("abi reference is empty"))
	}
	if r.source == nil {
		return nil, model.NewConfigError(key.String(), errors.New("abi source is nil"))
	}

	doc, err := r.source.Load(ctx, contract.ABI)
	if err != nil {
		return nil, model.NewConfigError(contract.ABI, fmt.Errorf("load abi: %w", err))
	}
	events, err := ParseEvents(doc)
	if err != nil {
		return nil, model.NewConfigError(contract.ABI, err)
	}

	r.logger.Debug("abi loaded",
		zap.String("contract", key.String()),
		zap.String("abi", contract.ABI),
		zap.Int("events", len(events)),
	)
	return events, nil
}

// ParseEvents parses an ABI document and compiles its non-anonymous events
// keyed by topic0. Both a bare ABI array and an artifact object with an
// "abi" field are accepted.
func ParseEvents(doc []byte) (map[common.Hash]*eventabi.EventSpec, error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return nil, errors.New("abi document is empty")
	}
	if doc[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(doc, &artifact); err != nil {
			return nil, fmt.Errorf("parse abi artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return nil, errors.New("abi artifact has no abi field")
		}
		doc = artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	events := make(map[common.Hash]*eventabi.EventSpec, len(parsed.Events))
	for _, event := range parsed.Events {
		if event.Anonymous {
			continue
		}
		spec, err := eventabi.Compile(event)
		if err != nil {
			return nil, err
		}
		events[spec.Topic0] = spec
	}
	return events, nil
}
