package checkpoint

import (
	"context"
	"sync"
	"time"

	"eventScope/internal/model"
)

// MemoryStore keeps checkpoints in process memory. It is used for dry runs
// and tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[model.ContractKey]Checkpoint
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[model.ContractKey]Checkpoint), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key model.ContractKey) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.data[key]
	if !ok {
		return Empty(key), false, nil
	}
	return cp, true, nil
}

func (s *MemoryStore) Advance(_ context.Context, prev Checkpoint, toBlock uint64) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prev.Key()
	stored, ok := s.data[key]
	if !ok {
		stored = Empty(key)
	}
	next, write, err := NextAdvance(stored, prev, toBlock, s.now())
	if err != nil || !write {
		return next, err
	}
	s.data[key] = next
	return next, nil
}

func (s *MemoryStore) Reset(_ context.Context, key model.ContractKey, block uint64) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NextReset(s.data[key], key, block, s.now())
	s.data[key] = next
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, key model.ContractKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Checkpoint, 0, len(s.data))
	for _, cp := range s.data {
		out = append(out, cp)
	}
	SortCheckpoints(out)
	return out, nil
}
