// Package store provides the persistent key-value layer for the dialog client.
// One contract, three implementations: an in-memory map for tests, a
// hackpadfs-backed file store for the browser (IndexedDB), and a SQLite store
// for the native CLI.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// KV is the string key-value contract the rest of the client persists through.
// Reads never fail: a missing, unreadable or otherwise broken value is simply
// absent. Writes return errors, but callers are expected to log and continue.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error

	// Lifecycle
	Close() error
}

// MemKV is an in-memory implementation of KV for testing.
type MemKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemKV creates a new in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{values: make(map[string]string)}
}

func (s *MemKV) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

func (s *MemKV) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *MemKV) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Close is a no-op for MemKV.
func (s *MemKV) Close() error {
	return nil
}

// GetJSON reads and decodes a stored JSON value. A missing or unparseable
// value is reported as absent; corrupt storage is a cache miss, never an
// error.
func GetJSON[T any](kv KV, key string) (*T, bool) {
	raw, ok := kv.Get(key)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return &v, true
}

// SetJSON encodes a value and stores it under key.
func SetJSON(kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(key, string(data))
}

// Compile-time interface check
var _ KV = (*MemKV)(nil)
