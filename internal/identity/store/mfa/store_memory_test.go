package mfa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/identity/models"
	"bastion/pkg/platform/sentinel"
)

type InMemoryMFAStoreSuite struct {
	suite.Suite
	store *InMemoryMFAStore
}

func TestInMemoryMFAStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryMFAStoreSuite))
}

func (s *InMemoryMFAStoreSuite) SetupTest() {
	s.store = NewInMemoryMFAStore()
}

func (s *InMemoryMFAStoreSuite) TestConsumeBackupCode() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, &models.MFASetup{UserID: "u1", Secret: "S", BackupCodes: []string{"h1", "h2"}}))

	s.Require().NoError(s.store.ConsumeBackupCode(ctx, "u1", "h1"))
	s.Require().ErrorIs(s.store.ConsumeBackupCode(ctx, "u1", "h1"), sentinel.ErrAlreadyUsed)

	got, err := s.store.FindByUserID(ctx, "u1")
	s.Require().NoError(err)
	s.Equal([]string{"h2"}, got.BackupCodes)

	s.Require().ErrorIs(s.store.ConsumeBackupCode(ctx, "u2", "h1"), sentinel.ErrNotFound)
}

func (s *InMemoryMFAStoreSuite) TestMarkVerified() {
	ctx := context.Background()
	first := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Save(ctx, &models.MFASetup{UserID: "u1", Secret: "S"}))

	s.Require().NoError(s.store.MarkVerified(ctx, "u1", first))
	s.Require().NoError(s.store.MarkVerified(ctx, "u1", first.Add(time.Hour)))

	got, err := s.store.FindByUserID(ctx, "u1")
	s.Require().NoError(err)
	s.True(got.Verified)
	s.Equal(first, got.VerifiedAt)

	s.Require().ErrorIs(s.store.MarkVerified(ctx, "u2", first), sentinel.ErrNotFound)
}
