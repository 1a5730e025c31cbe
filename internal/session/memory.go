package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore is an in-process Store for a single instance.
type MemoryStore struct {
	mu    sync.RWMutex
	state map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore. States older than ttl are treated as
// absent; ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		state: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the current state for phone, or nil.
func (s *MemoryStore) Get(_ context.Context, phone string) (*State, error) {
	s.mu.RLock()
	e, ok := s.state[phone]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.mu.Lock()
		// re-check: a concurrent Set may have replaced it
		if cur, ok := s.state[phone]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.state, phone)
		}
		s.mu.Unlock()
		return nil, nil
	}
	st := cloneState(e.state)
	return &st, nil
}

// Set replaces the state for phone.
func (s *MemoryStore) Set(_ context.Context, phone string, st State) error {
	e := memoryEntry{state: cloneState(st)}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[phone] = e
	return nil
}

// Clear removes the state for phone.
func (s *MemoryStore) Clear(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, phone)
	return nil
}
