package session

import (
	"context"
	"sync"

	id "sebenza/pkg/domain"
	"sebenza/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return sentinel.ErrConflict
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID id.SessionID) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, sentinel.ErrNotFound
	}
	return session, nil
}

func (s *InMemoryStore) Update(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.sessions[session.ID] = session
	return nil
}
