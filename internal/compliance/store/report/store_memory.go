package report

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bastion/internal/compliance/models"
	"bastion/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*models.Report
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[string]*models.Report)}
}

func (s *InMemoryStore) Save(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; ok {
		return fmt.Errorf("report %s: %w", r.ID, sentinel.ErrConflict)
	}
	s.reports[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

// ListByStandard returns the reports of standard, newest first.
func (s *InMemoryStore) ListByStandard(_ context.Context, standard string) ([]*models.Report, error) {
	s.mu.RLock()
	var out []*models.Report
	for _, r := range s.reports {
		if r.Standard == standard {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	return out, nil
}
