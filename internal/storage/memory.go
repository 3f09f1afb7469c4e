package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore is an in-process Store used by tests and by ephemeral
// sessions that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte // kind -> key -> json
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, kind, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[kind] == nil {
		s.records[kind] = make(map[string][]byte)
	}
	s.records[kind][key] = data
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, kind, key string, out any) error {
	s.mu.RLock()
	data, ok := s.records[kind][key]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s/%s", kind, key)
	}
	return json.Unmarshal(data, out)
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context, kind string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([][]byte, 0, len(s.records[kind]))
	for _, data := range s.records[kind] {
		records = append(records, data)
	}
	return records, nil
}
