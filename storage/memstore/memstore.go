// Package memstore provides an in-memory storage.Store used by tests and by
// applications that do not need persistence across restarts.
package memstore

import (
	"context"
	"sync"
)

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu     sync.RWMutex
	values map[string]string

	// SyncFunc, when set, is invoked by Sync. Tests use it to simulate a
	// store with asynchronous replication.
	SyncFunc func(ctx context.Context) error
}

// New creates a new in-memory store
func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}

// Sync implements storage.Syncer.
func (s *Store) Sync(ctx context.Context) error {
	if s.SyncFunc != nil {
		return s.SyncFunc(ctx)
	}
	return nil
}
