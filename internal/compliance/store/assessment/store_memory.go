package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bastion/internal/compliance/models"
	"bastion/pkg/platform/sentinel"
)

// InMemoryStore keeps assessments in insertion order.
type InMemoryStore struct {
	mu          sync.RWMutex
	assessments []*models.Assessment
	ids         map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

func (s *InMemoryStore) Save(_ context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[a.ID]; ok {
		return fmt.Errorf("assessment %s: %w", a.ID, sentinel.ErrConflict)
	}
	s.ids[a.ID] = struct{}{}
	s.assessments = append(s.assessments, a.Clone())
	return nil
}

func (s *InMemoryStore) Latest(_ context.Context) (*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.assessments) == 0 {
		return nil, fmt.Errorf("no assessment: %w", sentinel.ErrNotFound)
	}
	latest := s.assessments[0]
	for _, a := range s.assessments[1:] {
		if !a.Timestamp.Before(latest.Timestamp) {
			latest = a
		}
	}
	return latest.Clone(), nil
}

// List returns up to limit assessments, newest first. limit <= 0 means all.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]*models.Assessment, error) {
	s.mu.RLock()
	out := make([]*models.Assessment, 0, len(s.assessments))
	for _, a := range s.assessments {
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
