package service

import (
	"context"
	"errors"
	"slices"

	"bastion/internal/authn/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sentinel"
)

// ValidateSession returns the live session and records activity on it. An
// expired or idle session is deleted.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, dErrors.New(dErrors.CodeSessionInvalid, "invalid session")
	}
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, s.sessionLookupError(err)
	}

	now := s.clock.Now()
	reason := ""
	switch {
	case sess.IsExpired(now):
		reason = "expired"
	case sess.IsIdle(now, s.inactivity):
		reason = "inactive"
	}
	if reason != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to delete ended session", "session_id", sessionID, "error", err)
		}
		s.metrics.IncSessionsEnded(reason, 1)
		return nil, dErrors.New(dErrors.CodeSessionExpired, "session expired")
	}

	if err := s.sessions.Touch(ctx, sessionID, now); err != nil {
		return nil, s.sessionLookupError(err)
	}
	sess.LastActivityAt = now
	return sess, nil
}

func (s *Service) sessionLookupError(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeSessionInvalid, "invalid session")
	}
	return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "session store unavailable")
}

// ParseToken verifies a session token and the session behind it, so a
// revoked session invalidates its token immediately.
func (s *Service) ParseToken(ctx context.Context, raw string) (*models.Session, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	sess, err := s.ValidateSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UserID {
		return nil, dErrors.New(dErrors.CodeSessionInvalid, "invalid session")
	}
	return sess, nil
}

// Logout ends the session. Ending an unknown session is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to end session")
	}
	if err == nil {
		s.metrics.IncSessionsEnded("logout", 1)
	}
	s.logger.InfoContext(ctx, "session ended", "session_id", sessionID)
	return nil
}

// CleanupExpiredSessions removes expired and idle sessions and returns how
// many were removed.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.clock.Now(), s.inactivity)
	if err != nil {
		return n, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to clean up sessions")
	}
	if n > 0 {
		s.metrics.IncSessionsEnded("cleanup", n)
		s.logger.InfoContext(ctx, "expired sessions removed", "count", n)
	}
	return n, nil
}

// LockdownSystem ends every session.
func (s *Service) LockdownSystem(ctx context.Context) (int, error) {
	n, err := s.sessions.DeleteAll(ctx)
	if err != nil {
		return n, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to end sessions")
	}
	s.metrics.IncSessionsEnded("lockdown", n)
	s.logger.ErrorContext(ctx, "system lockdown: all sessions closed", "count", n)
	return n, nil
}

func sortOldestFirst(sessions []*models.Session) {
	slices.SortFunc(sessions, func(a, b *models.Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
