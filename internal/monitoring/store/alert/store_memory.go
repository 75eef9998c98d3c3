package alert

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"bastion/internal/monitoring/models"
	"bastion/pkg/platform/sentinel"
)

// InMemoryStore backs the security_alerts collection.
type InMemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*models.SecurityAlert
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{alerts: make(map[string]*models.SecurityAlert)}
}

func (s *InMemoryStore) Create(_ context.Context, a *models.SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return fmt.Errorf("alert %s: %w", a.ID, sentinel.ErrConflict)
	}
	s.alerts[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, a *models.SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; !ok {
		return fmt.Errorf("alert %s: %w", a.ID, sentinel.ErrNotFound)
	}
	s.alerts[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, sentinel.ErrNotFound)
	}
	return a.Clone(), nil
}

// ListSince returns alerts raised at or after since, newest first.
func (s *InMemoryStore) ListSince(_ context.Context, since time.Time) ([]*models.SecurityAlert, error) {
	return s.collect(func(a *models.SecurityAlert) bool { return !a.Timestamp.Before(since) }), nil
}

// ListByStatus returns alerts in status, newest first.
func (s *InMemoryStore) ListByStatus(_ context.Context, status models.AlertStatus) ([]*models.SecurityAlert, error) {
	return s.collect(func(a *models.SecurityAlert) bool { return a.Status == status }), nil
}

func (s *InMemoryStore) collect(keep func(*models.SecurityAlert) bool) []*models.SecurityAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SecurityAlert
	for _, a := range s.alerts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.SecurityAlert) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), cmp.Compare(a.ID, b.ID))
	})
	return out
}
