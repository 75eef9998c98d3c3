package group

import (
	"context"
	"fmt"
	"sync"

	"bastion/internal/identity/models"
	"bastion/pkg/platform/sentinel"
)

type InMemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[string]*models.Group
}

func NewInMemoryGroupStore() *InMemoryGroupStore {
	return &InMemoryGroupStore{groups: make(map[string]*models.Group)}
}

// Save creates or replaces a group.
func (s *InMemoryGroupStore) Save(_ context.Context, g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g.Clone()
	return nil
}

func (s *InMemoryGroupStore) FindByID(_ context.Context, id string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group not found: %w", sentinel.ErrNotFound)
	}
	return g.Clone(), nil
}
