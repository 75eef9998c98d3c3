package resource

import (
	"context"
	"fmt"
	"sync"

	"bastion/internal/authz/models"
	"bastion/pkg/platform/sentinel"
)

// InMemoryStore serves resource documents for conditions in tests and
// single-process deployments where the application registers its documents.
type InMemoryStore struct {
	mu        sync.RWMutex
	resources map[string]*models.Resource
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{resources: make(map[string]*models.Resource)}
}

func key(resourceType, id string) string {
	return resourceType + "/" + id
}

// Put inserts or replaces a resource.
func (s *InMemoryStore) Put(_ context.Context, r *models.Resource) error {
	if r.Type == "" || r.ID == "" {
		return fmt.Errorf("resource type and id are required: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[key(r.Type, r.ID)] = r.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, resourceType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resources, key(resourceType, id))
}

func (s *InMemoryStore) FindResource(_ context.Context, resourceType, id string) (*models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[key(resourceType, id)]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", resourceType, id, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}
