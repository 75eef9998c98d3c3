//go:build integration

package lockout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/authn/store/lockout"
	"bastion/pkg/testutil/containers"
)

type PostgresLockoutStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *lockout.PostgresStore
	now   time.Time
}

func TestPostgresLockoutStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLockoutStoreSuite))
}

func (s *PostgresLockoutStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = lockout.NewPostgres(s.pg.DB)
	s.now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
}

func (s *PostgresLockoutStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "auth_lockouts"))
}

func (s *PostgresLockoutStoreSuite) TestLifecycle() {
	ctx := context.Background()

	rec, err := s.store.Get(ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Nil(rec)

	rec, err = s.store.RecordFailure(ctx, "alice@example.com", s.now)
	s.Require().NoError(err)
	s.Equal(1, rec.FailureCount)
	s.Nil(rec.LockedUntil)

	rec, err = s.store.RecordFailure(ctx, "alice@example.com", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(2, rec.FailureCount)
	s.True(rec.LastFailureAt.Equal(s.now.Add(time.Minute)))

	until := s.now.Add(30 * time.Minute)
	s.Require().NoError(s.store.Lock(ctx, "alice@example.com", until))
	rec, err = s.store.Get(ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Require().NotNil(rec.LockedUntil)
	s.True(rec.LockedUntil.Equal(until))
	s.True(rec.IsLocked(s.now))

	s.Require().NoError(s.store.Clear(ctx, "alice@example.com"))
	rec, err = s.store.Get(ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Nil(rec)
}

func (s *PostgresLockoutStoreSuite) TestConcurrentFailuresAreAtomic() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.RecordFailure(ctx, "bob@example.com", s.now)
			s.NoError(err)
		}()
	}
	wg.Wait()

	rec, err := s.store.Get(ctx, "bob@example.com")
	s.Require().NoError(err)
	s.Equal(20, rec.FailureCount)
}
