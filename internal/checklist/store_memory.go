package checklist

import (
	"context"
	"sync"

	id "sebenza/pkg/domain"
	"sebenza/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	items map[id.CandidateID]map[ItemType]Item
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[id.CandidateID]map[ItemType]Item)}
}

func (s *InMemoryStore) SaveAll(_ context.Context, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		byType, ok := s.items[item.CandidateID]
		if !ok {
			byType = make(map[ItemType]Item)
			s.items[item.CandidateID] = byType
		}
		byType[item.Type] = item
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, candidateID id.CandidateID, itemType ItemType) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[candidateID][itemType]
	if !ok {
		return Item{}, sentinel.ErrNotFound
	}
	return item, nil
}

func (s *InMemoryStore) Update(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.CandidateID][item.Type]; !ok {
		return sentinel.ErrNotFound
	}
	s.items[item.CandidateID][item.Type] = item
	return nil
}

func (s *InMemoryStore) DeleteByCandidate(_ context.Context, candidateID id.CandidateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, candidateID)
	return nil
}

func (s *InMemoryStore) ListByCandidate(_ context.Context, candidateID id.CandidateID) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byType := s.items[candidateID]
	items := make([]Item, 0, len(byType))
	for _, t := range allItemTypes {
		if item, ok := byType[t]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}
