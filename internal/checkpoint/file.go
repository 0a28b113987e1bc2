package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"eventScope/internal/model"
)

type fileDocument struct {
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// FileStore persists all checkpoints in a single JSON file. Every operation
// re-reads the file, and writes go through a tmp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) Get(_ context.Context, key model.ContractKey) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Checkpoint{}, false, err
	}
	cp, ok := data[key]
	if !ok {
		return Empty(key), false, nil
	}
	return cp, true, nil
}

func (s *FileStore) Advance(_ context.Context, prev Checkpoint, toBlock uint64) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Checkpoint{}, err
	}
	key := prev.Key()
	stored, ok := data[key]
	if !ok {
		stored = Empty(key)
	}
	next, write, err := NextAdvance(stored, prev, toBlock, s.now())
	if err != nil || !write {
		return next, err
	}
	data[key] = next
	if err := s.save(data); err != nil {
		return Checkpoint{}, err
	}
	return next, nil
}

func (s *FileStore) Reset(_ context.Context, key model.ContractKey, block uint64) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Checkpoint{}, err
	}
	next := NextReset(data[key], key, block, s.now())
	data[key] = next
	if err := s.save(data); err != nil {
		return Checkpoint{}, err
	}
	return next, nil
}

func (s *FileStore) Delete(_ context.Context, key model.ContractKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.save(data)
}

func (s *FileStore) List(_ context.Context) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	return sortedCheckpoints(data), nil
}

func (s *FileStore) load() (map[model.ContractKey]Checkpoint, error) {
	out := make(map[model.ContractKey]Checkpoint)
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("checkpoint path is a directory")
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	for _, cp := range doc.Checkpoints {
		cp.Address = model.NormalizeAddress(cp.Address)
		out[cp.Key()] = cp
	}
	return out, nil
}

func (s *FileStore) save(data map[model.ContractKey]Checkpoint) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	raw, err := json.MarshalIndent(fileDocument{Checkpoints: sortedCheckpoints(data)}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func sortedCheckpoints(data map[model.ContractKey]Checkpoint) []Checkpoint {
	out := make([]Checkpoint, 0, len(data))
	for _, cp := range data {
		out = append(out, cp)
	}
	SortCheckpoints(out)
	return out
}
