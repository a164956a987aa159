// Package store persists verification sessions. The in-memory implementation
// backs tests and single-node runs; the service layer only depends on the
// interface the session service declares.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"atlasid/internal/sentinel"
	"atlasid/internal/session/models"
)

// InMemory stores sessions keyed by token.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	now      func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[string]*models.Session),
		now:      time.Now,
	}
}

// Create persists a new session. Token collisions indicate a caller bug.
func (s *InMemory) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.Token]; exists {
		return fmt.Errorf("session %q: %w", session.Token, sentinel.ErrInvalidState)
	}
	s.sessions[session.Token] = session.Clone()
	return nil
}

// Get returns a copy of the session for the token.
func (s *InMemory) Get(_ context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return session.Clone(), nil
}

// Finalize transitions a pending session to a terminal status. A session
// already finalized stays as it is: the first outcome wins, later
// submissions fail with ErrFinalized.
func (s *InMemory) Finalize(_ context.Context, token string, status models.Status) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if session.Finalized() {
		return nil, fmt.Errorf("session %q is %s: %w", token, session.Status, sentinel.ErrFinalized)
	}
	at := s.now()
	session.Status = status
	session.FinalizedAt = &at
	return session.Clone(), nil
}
