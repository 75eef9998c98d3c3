package key

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bastion/internal/encryption/models"
	"bastion/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*models.KeyMetadata
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]*models.KeyMetadata)}
}

func (s *InMemoryStore) Create(_ context.Context, k *models.KeyMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k.ID]; ok {
		return fmt.Errorf("key %s: %w", k.ID, sentinel.ErrConflict)
	}
	s.keys[k.ID] = k.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.KeyMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", id, sentinel.ErrNotFound)
	}
	return k.Clone(), nil
}

// FindActive returns the newest active key of contextID.
func (s *InMemoryStore) FindActive(_ context.Context, contextID string) (*models.KeyMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *models.KeyMetadata
	for _, k := range s.keys {
		if k.ContextID != contextID || k.Status != models.KeyActive {
			continue
		}
		if newest == nil || k.CreatedAt.After(newest.CreatedAt) {
			newest = k
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("no active key for %s: %w", contextID, sentinel.ErrNotFound)
	}
	return newest.Clone(), nil
}

// IncrementUsage bumps the usage counter of an active key.
func (s *InMemoryStore) IncrementUsage(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return fmt.Errorf("key %s: %w", id, sentinel.ErrNotFound)
	}
	if k.Status != models.KeyActive {
		return fmt.Errorf("key %s is %s: %w", id, k.Status, sentinel.ErrInvalidState)
	}
	k.UsageCount++
	k.LastUsedAt = at
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, k *models.KeyMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k.ID]; !ok {
		return fmt.Errorf("key %s: %w", k.ID, sentinel.ErrNotFound)
	}
	s.keys[k.ID] = k.Clone()
	return nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status models.KeyStatus) ([]*models.KeyMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.KeyMetadata
	for _, k := range s.keys {
		if k.Status == status {
			out = append(out, k.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.KeyStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.KeyStatus]int)
	for _, k := range s.keys {
		out[k.Status]++
	}
	return out, nil
}
