//go:build integration

package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bastion/internal/authn/models"
	"bastion/internal/authn/store/session"
	"bastion/pkg/platform/sentinel"
	"bastion/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = session.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func makeSession(userID string, expiresIn time.Duration) *models.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Email:          userID + "@example.com",
		Roles:          []string{"analyst"},
		IPAddress:      "203.0.113.7",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(expiresIn),
	}
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	sess := makeSession("u1", time.Hour)
	s.Require().NoError(s.store.Create(ctx, sess))

	got, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(sess.UserID, got.UserID)
	s.Equal(sess.Roles, got.Roles)
	s.True(sess.ExpiresAt.Equal(got.ExpiresAt))

	s.True(errors.Is(s.store.Create(ctx, sess), sentinel.ErrConflict))

	ttl, err := s.redis.Client.TTL(ctx, "session:"+sess.ID).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Minute)
}

func (s *RedisStoreSuite) TestTouchKeepsExpiry() {
	ctx := context.Background()
	sess := makeSession("u1", time.Hour)
	s.Require().NoError(s.store.Create(ctx, sess))

	at := sess.LastActivityAt.Add(10 * time.Minute)
	s.Require().NoError(s.store.Touch(ctx, sess.ID, at))

	got, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.True(at.Equal(got.LastActivityAt))

	ttl, err := s.redis.Client.TTL(ctx, "session:"+sess.ID).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0), "touch must not drop the expiry")

	s.True(errors.Is(s.store.Touch(ctx, "missing", at), sentinel.ErrNotFound))
}

func (s *RedisStoreSuite) TestConcurrentTouchAndDelete() {
	ctx := context.Background()
	sess := makeSession("u1", time.Hour)
	s.Require().NoError(s.store.Create(ctx, sess))

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.store.Touch(ctx, sess.ID, sess.LastActivityAt.Add(time.Duration(i)*time.Second))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.store.Delete(ctx, sess.ID)
	}()
	wg.Wait()

	_, err := s.store.FindByID(ctx, sess.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound), "a touch must never resurrect a deleted session")
}

func (s *RedisStoreSuite) TestListDeleteExpiredAndAll() {
	ctx := context.Background()
	a := makeSession("u1", time.Hour)
	b := makeSession("u1", time.Hour)
	c := makeSession("u2", time.Hour)
	for _, sess := range []*models.Session{a, b, c} {
		s.Require().NoError(s.store.Create(ctx, sess))
	}

	list, err := s.store.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Len(list, 2)

	s.Require().NoError(s.store.Delete(ctx, a.ID))
	list, err = s.store.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Len(list, 1)

	n, err := s.store.DeleteExpired(ctx, time.Now().Add(2*time.Hour), 0)
	s.Require().NoError(err)
	s.Equal(2, n)

	s.Require().NoError(s.store.Create(ctx, makeSession("u3", time.Hour)))
	n, err = s.store.DeleteAll(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}
