package memory

import (
	"context"
	"sync"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]UserState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]UserState)}
}

func (s *InMemoryStore) Create(_ context.Context, userID, name string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return ErrAlreadyExists
	}
	s.users[userID] = newUserState(userID, name, role)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID string) (UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.users[userID]
	if !ok {
		return UserState{}, ErrNotFound
	}
	return cloneState(state), nil
}

func (s *InMemoryStore) Merge(_ context.Context, userID string, patch Patch) (UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.users[userID]
	if !ok {
		return UserState{}, ErrNotFound
	}
	state = applyPatch(state, patch)
	s.users[userID] = state
	return cloneState(state), nil
}

func (s *InMemoryStore) Put(_ context.Context, userID string, state UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UserID = userID
	s.users[userID] = cloneState(state)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
