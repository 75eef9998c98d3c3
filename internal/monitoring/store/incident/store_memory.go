package incident

import (
	"context"
	"fmt"
	"sync"

	"bastion/internal/monitoring/models"
	"bastion/pkg/platform/sentinel"
)

// InMemoryStore backs the security_incidents collection.
type InMemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*models.Incident
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{incidents: make(map[string]*models.Incident)}
}

func (s *InMemoryStore) Create(_ context.Context, i *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[i.ID]; ok {
		return fmt.Errorf("incident %s: %w", i.ID, sentinel.ErrConflict)
	}
	s.incidents[i.ID] = i.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, i *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[i.ID]; !ok {
		return fmt.Errorf("incident %s: %w", i.ID, sentinel.ErrNotFound)
	}
	s.incidents[i.ID] = i.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, sentinel.ErrNotFound)
	}
	return i.Clone(), nil
}
