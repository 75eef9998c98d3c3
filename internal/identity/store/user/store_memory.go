package user

import (
	"context"
	"fmt"
	"sync"

	"bastion/internal/identity/models"
	"bastion/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in memory for tests and development.
// Returned users are copies.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryUserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := models.NormalizeEmail(u.Email)
	if _, ok := s.byID[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byEmail[email]; ok {
		return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
	}
	cp := u.Clone()
	cp.Email = email
	s.byID[u.ID] = cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return u.Clone(), nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

func (s *InMemoryUserStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[u.ID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	email := models.NormalizeEmail(u.Email)
	if email != existing.Email {
		if _, taken := s.byEmail[email]; taken {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
		delete(s.byEmail, existing.Email)
		s.byEmail[email] = u.ID
	}
	cp := u.Clone()
	cp.Email = email
	s.byID[u.ID] = cp
	return nil
}

// ListByRole returns every user holding role.
func (s *InMemoryUserStore) ListByRole(_ context.Context, role string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.byID {
		if u.Role == role {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}
