//go:build integration

package key_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/encryption/models"
	"bastion/internal/encryption/service"
	"bastion/internal/encryption/store/key"
	"bastion/pkg/platform/sentinel"
	"bastion/pkg/testutil/containers"
)

type PostgresKeyStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *key.PostgresStore
}

func TestPostgresKeyStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresKeyStoreSuite))
}

func (s *PostgresKeyStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = key.NewPostgres(s.pg.DB)
}

func (s *PostgresKeyStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "encryption_keys"))
}

func (s *PostgresKeyStoreSuite) TestLifecycle() {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Microsecond)
	k := &models.KeyMetadata{ID: "global_1", ContextID: "global", Algorithm: models.AlgorithmAES256GCM,
		CreatedAt: t0, Status: models.KeyActive, KeyHash: "abc"}
	s.Require().NoError(s.store.Create(ctx, k))
	s.ErrorIs(s.store.Create(ctx, k), sentinel.ErrConflict)

	s.Require().NoError(s.store.IncrementUsage(ctx, "global_1", t0))
	got, err := s.store.FindActive(ctx, "global")
	s.Require().NoError(err)
	s.Equal(int64(1), got.UsageCount)
	s.Equal(t0, got.LastUsedAt)

	got.Status = models.KeyRevoked
	s.Require().NoError(s.store.Update(ctx, got))
	s.ErrorIs(s.store.IncrementUsage(ctx, "global_1", t0), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.IncrementUsage(ctx, "missing", t0), sentinel.ErrNotFound)

	_, err = s.store.FindActive(ctx, "global")
	s.ErrorIs(err, sentinel.ErrNotFound)

	counts, err := s.store.CountByStatus(ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[models.KeyRevoked])
}

func (s *PostgresKeyStoreSuite) TestServiceRoundTrip() {
	ctx := context.Background()
	master := make([]byte, service.MasterKeySize)
	svc, err := service.New(s.store, master)
	s.Require().NoError(err)

	envelope, err := svc.EncryptValue(ctx, map[string]string{"iban": "FR76"}, "user_42")
	s.Require().NoError(err)

	var out map[string]string
	s.Require().NoError(svc.DecryptValue(ctx, envelope, "user_42", &out))
	s.Equal("FR76", out["iban"])
}
