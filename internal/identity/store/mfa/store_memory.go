package mfa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bastion/internal/identity/models"
	"bastion/pkg/platform/sentinel"
)

type InMemoryMFAStore struct {
	mu     sync.RWMutex
	setups map[string]*models.MFASetup
}

func NewInMemoryMFAStore() *InMemoryMFAStore {
	return &InMemoryMFAStore{setups: make(map[string]*models.MFASetup)}
}

// Save creates or replaces the enrolment of setup.UserID.
func (s *InMemoryMFAStore) Save(_ context.Context, setup *models.MFASetup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setups[setup.UserID] = setup.Clone()
	return nil
}

func (s *InMemoryMFAStore) FindByUserID(_ context.Context, userID string) (*models.MFASetup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setup, ok := s.setups[userID]
	if !ok {
		return nil, fmt.Errorf("mfa setup not found: %w", sentinel.ErrNotFound)
	}
	return setup.Clone(), nil
}

// ConsumeBackupCode removes hash from the enrolment if it is still present.
// Running under the store lock makes each code single-use across callers.
func (s *InMemoryMFAStore) ConsumeBackupCode(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	setup, ok := s.setups[userID]
	if !ok {
		return fmt.Errorf("mfa setup not found: %w", sentinel.ErrNotFound)
	}
	for i, h := range setup.BackupCodes {
		if h == hash {
			setup.BackupCodes = append(setup.BackupCodes[:i:i], setup.BackupCodes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("backup code: %w", sentinel.ErrAlreadyUsed)
}

// MarkVerified flags the enrolment as confirmed. Later calls keep the first
// verification time.
func (s *InMemoryMFAStore) MarkVerified(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	setup, ok := s.setups[userID]
	if !ok {
		return fmt.Errorf("mfa setup not found: %w", sentinel.ErrNotFound)
	}
	if !setup.Verified {
		setup.Verified = true
		setup.VerifiedAt = at
	}
	return nil
}
