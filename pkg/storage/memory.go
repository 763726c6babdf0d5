package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]json.RawMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]map[string]json.RawMessage{}}
}

// Get returns the record for kind and key, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, kind, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[kind][key]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

// List returns all records of a kind in key order.
func (m *MemoryStore) List(_ context.Context, kind string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.records[kind]))
	for key := range m.records[kind] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]json.RawMessage, 0, len(keys))
	for _, key := range keys {
		out = append(out, m.records[kind][key])
	}
	return out, nil
}

// Save creates or replaces the record for kind and key.
func (m *MemoryStore) Save(_ context.Context, kind, key string, record json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[kind] == nil {
		m.records[kind] = map[string]json.RawMessage{}
	}
	m.records[kind][key] = record
	return nil
}

// Delete removes the record for kind and key, or returns ErrNotFound.
func (m *MemoryStore) Delete(_ context.Context, kind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[kind][key]; !ok {
		return ErrNotFound
	}
	delete(m.records[kind], key)
	return nil
}
