// Package kvstore provides the persistent key-value store backing the reorder
// WAL and the per-thread parameter cache. It has local-storage semantics:
// string keys, string values, last write wins.
package kvstore

import (
	"errors"
	"sync"
)

// ErrClosed is returned by writes against a closed store.
var ErrClosed = errors.New("kvstore: store is closed")

// Storage is the local-storage contract used by the rest of the app.
// GetItem reports ok=false for missing keys and for unreadable stores.
type Storage interface {
	GetItem(key string) (value string, ok bool)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is an in-process Storage, used when no database can be opened
// and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

// GetItem returns the value for key.
func (m *MemoryStore) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// SetItem stores value under key.
func (m *MemoryStore) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

// RemoveItem deletes key. Missing keys are not an error.
func (m *MemoryStore) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
