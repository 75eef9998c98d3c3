package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bastion/internal/authn/models"
	"bastion/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in memory for tests and single-node
// deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byUser   map[string]map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (s *InMemoryStore) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s: %w", sess.ID, sentinel.ErrConflict)
	}
	s.sessions[sess.ID] = sess.Clone()
	ids, ok := s.byUser[sess.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[sess.UserID] = ids
	}
	ids[sess.ID] = struct{}{}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return sess.Clone(), nil
}

// Touch records activity on the session at at.
func (s *InMemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	sess.LastActivityAt = at
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.deleteLocked(id) {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Session, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		out = append(out, s.sessions[id].Clone())
	}
	return out, nil
}

// DeleteExpired removes sessions past their absolute expiry or idle for
// longer than idle. A zero idle disables the inactivity check.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time, idle time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.IsExpired(now) || sess.IsIdle(now, idle) {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*models.Session)
	s.byUser = make(map[string]map[string]struct{})
	return n, nil
}

func (s *InMemoryStore) deleteLocked(id string) bool {
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	if ids := s.byUser[sess.UserID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
	return true
}
