package anomaly

import (
	"context"
	"slices"
	"sync"

	"bastion/internal/monitoring/models"
)

// InMemoryStore backs the security_anomalies collection.
type InMemoryStore struct {
	mu        sync.RWMutex
	anomalies []models.Anomaly
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, a models.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies = append(s.anomalies, a)
	return nil
}

// ListByType returns anomalies of type t in insertion order. An empty t
// returns all of them.
func (s *InMemoryStore) ListByType(_ context.Context, t string) ([]models.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t == "" {
		return slices.Clone(s.anomalies), nil
	}
	var out []models.Anomaly
	for _, a := range s.anomalies {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out, nil
}
