package cache

import (
	"context"
	"sync"
)

// InMemoryStore is a volatile Store keeping entries in a process local map.
// It is safe for concurrent access and best suited for tests or single
// process deployments. Values are copied on the way in and out.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]byte)}
}

// Set implements Store.
func (s *InMemoryStore) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = v
	return nil
}

// Take implements Store.
func (s *InMemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, key)
	return v, nil
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
