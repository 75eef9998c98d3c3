package metric

import (
	"context"
	"sync"
	"time"

	"bastion/internal/monitoring/models"
)

// InMemoryStore backs the security_metrics collection.
type InMemoryStore struct {
	mu      sync.RWMutex
	metrics []models.SecurityMetric
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, m models.SecurityMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

// Since returns the points of name recorded at or after since.
func (s *InMemoryStore) Since(_ context.Context, name string, since time.Time) ([]models.SecurityMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SecurityMetric
	for _, m := range s.metrics {
		if m.Name == name && !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}
