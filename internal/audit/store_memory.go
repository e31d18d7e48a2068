package audit

import (
	"context"
	"sync"
)

type entityKey struct {
	entityType EntityType
	entityID   string
}

// InMemoryStore keeps trails per entity in append order. Used by unit tests
// and single-process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[entityKey][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[entityKey][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{entityType: entry.EntityType, entityID: entry.EntityID}
	s.entries[key] = append(s.entries[key], entry)
	return nil
}

func (s *InMemoryStore) ByEntity(_ context.Context, entityType EntityType, entityID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := entityKey{entityType: entityType, entityID: entityID}
	return append([]Entry{}, s.entries[key]...), nil
}
