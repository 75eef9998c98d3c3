package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bastion/internal/authn/models"
	"bastion/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "session:"
	userKeyPrefix    = "user_sessions:"
	allSessionsKey   = "sessions"

	touchRetries = 3
)

// RedisStore shares sessions between instances. Each session is a JSON
// value that expires with the session; per-user and global sets index them
// and are cleaned lazily when they point at expired keys.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func userKey(userID string) string {
	return userKeyPrefix + userID
}

func (s *RedisStore) Create(ctx context.Context, sess *models.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, sessionKey(sess.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s: %w", sess.ID, sentinel.ErrConflict)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ExpireAt(ctx, sessionKey(sess.ID), sess.ExpiresAt)
		pipe.SAdd(ctx, userKey(sess.UserID), sess.ID)
		pipe.SAdd(ctx, allSessionsKey, sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	return s.get(ctx, s.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*models.Session, error) {
	raw, err := c.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Touch updates LastActivityAt under WATCH so a concurrent delete or touch
// is never overwritten. Conflicts are retried a few times.
func (s *RedisStore) Touch(ctx context.Context, id string, at time.Time) error {
	key := sessionKey(id)
	touch := func(tx *redis.Tx) error {
		sess, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		sess.LastActivityAt = at
		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, redis.SetArgs{KeepTTL: true, Mode: "XX"})
			return nil
		})
		return err
	}

	var err error
	for range touchRetries {
		err = s.client.Watch(ctx, touch, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("touch session: %w", err)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, id, sess.UserID)
}

func (s *RedisStore) remove(ctx context.Context, id, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		if userID != "" {
			pipe.SRem(ctx, userKey(userID), id)
		}
		pipe.SRem(ctx, allSessionsKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions, stale, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, userKey(userID), toAny(stale)...)
		s.client.SRem(ctx, allSessionsKey, toAny(stale)...)
	}
	return sessions, nil
}

// DeleteExpired removes sessions past their absolute expiry or idle for
// longer than idle, along with index entries whose keys redis has already
// expired.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time, idle time.Duration) (int, error) {
	ids, err := s.client.SMembers(ctx, allSessionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	sessions, stale, err := s.load(ctx, ids)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if !sess.IsExpired(now) && !sess.IsIdle(now, idle) {
			continue
		}
		if err := s.remove(ctx, sess.ID, sess.UserID); err != nil {
			return n, err
		}
		n++
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, allSessionsKey, toAny(stale)...).Err(); err != nil {
			return n, fmt.Errorf("prune session index: %w", err)
		}
		n += len(stale)
	}
	return n, nil
}

func (s *RedisStore) DeleteAll(ctx context.Context) (int, error) {
	ids, err := s.client.SMembers(ctx, allSessionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	sessions, stale, err := s.load(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		if err := s.remove(ctx, sess.ID, sess.UserID); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, allSessionsKey, toAny(stale)...)
	}
	return len(sessions), nil
}

// load fetches ids in one round trip and reports the ids with no value.
func (s *RedisStore) load(ctx context.Context, ids []string) ([]*models.Session, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load sessions: %w", err)
	}
	var sessions []*models.Session
	var stale []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sess models.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, nil, fmt.Errorf("decode session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, stale, nil
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
