package lockout

import (
	"context"
	"sync"
	"time"

	"bastion/internal/authn/models"
)

// InMemoryStore keeps lockout counters in memory.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.Lockout
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.Lockout)}
}

// Get returns the record for identifier, or nil when there is none.
func (s *InMemoryStore) Get(_ context.Context, identifier string) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyLockout(s.records[identifier]), nil
}

// RecordFailure increments the failure count and returns the updated record.
func (s *InMemoryStore) RecordFailure(_ context.Context, identifier string, now time.Time) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identifier]
	if !ok {
		rec = &models.Lockout{Identifier: identifier}
		s.records[identifier] = rec
	}
	rec.FailureCount++
	rec.LastFailureAt = now
	return copyLockout(rec), nil
}

// Lock sets the lock expiry of an existing record.
func (s *InMemoryStore) Lock(_ context.Context, identifier string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[identifier]; ok {
		rec.LockedUntil = &until
	}
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
	return nil
}

func copyLockout(rec *models.Lockout) *models.Lockout {
	if rec == nil {
		return nil
	}
	cp := *rec
	if rec.LockedUntil != nil {
		until := *rec.LockedUntil
		cp.LockedUntil = &until
	}
	return &cp
}
