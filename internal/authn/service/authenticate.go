package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"bastion/internal/authn/metrics"
	"bastion/internal/authn/models"
	idmodels "bastion/internal/identity/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/privacy"
	"bastion/pkg/platform/secrets"
	"bastion/pkg/platform/sentinel"
)

var errInvalidCredentials = dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")

// Authenticate checks the lockout, the password, the account state and,
// when the role requires it, the MFA code; it then mints a session.
//
// A missing MFA code is a challenge, not a failure, and is not counted
// towards the lockout. Every other rejection is.
func (s *Service) Authenticate(ctx context.Context, creds models.Credentials) (*models.AuthResult, error) {
	identifier := idmodels.NormalizeEmail(creds.Email)
	if identifier == "" || creds.Password == "" {
		s.metrics.IncAttempt(metrics.OutcomeFailure)
		return nil, errInvalidCredentials
	}
	if err := s.checkLockout(ctx, identifier); err != nil {
		return nil, err
	}

	user, err := s.verifyCredentials(ctx, identifier, creds.Password)
	if err != nil {
		return nil, s.fail(ctx, identifier, creds.IPAddress, metrics.OutcomeFailure, err)
	}

	mfaVerified := false
	if s.MFARequired(user.Role) {
		if creds.MFACode == "" {
			s.metrics.IncAttempt(metrics.OutcomeMFARequired)
			return nil, dErrors.New(dErrors.CodeMFARequired, "MFA code required")
		}
		ok, err := s.VerifyMFA(ctx, user.ID, creds.MFACode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, s.fail(ctx, identifier, creds.IPAddress, metrics.OutcomeMFAInvalid,
				dErrors.New(dErrors.CodeMFAInvalid, "invalid code"))
		}
		mfaVerified = true
	}

	sess, err := s.startSession(ctx, user, creds, mfaVerified)
	if err != nil {
		return nil, err
	}
	signed, err := s.tokens.Issue(sess)
	if err != nil {
		_ = s.sessions.Delete(ctx, sess.ID)
		return nil, err
	}

	if err := s.lockouts.Clear(ctx, identifier); err != nil {
		s.logger.WarnContext(ctx, "failed to reset lockout counter", "user_id", user.ID, "error", err)
	}
	user.LastLoginAt = sess.CreatedAt
	user.LastLoginIP = creds.IPAddress
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login", "user_id", user.ID, "error", err)
	}

	s.metrics.IncAttempt(metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "authentication succeeded",
		"user_id", user.ID,
		"session_id", sess.ID,
		"mfa_verified", mfaVerified,
		"ip", privacy.AnonymizeIP(creds.IPAddress),
	)
	return &models.AuthResult{
		UserID:      user.ID,
		SessionID:   sess.ID,
		Roles:       sess.Roles,
		MFAVerified: mfaVerified,
		Token:       signed,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

// checkLockout fails fast while identifier is locked and clears a lock that
// has run out, so the next failure starts counting from zero.
func (s *Service) checkLockout(ctx context.Context, identifier string) error {
	rec, err := s.lockouts.Get(ctx, identifier)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "authentication unavailable")
	}
	now := s.clock.Now()
	if rec.IsLocked(now) {
		s.metrics.IncAttempt(metrics.OutcomeLocked)
		return dErrors.Newf(dErrors.CodeAccountLocked,
			"account locked, try again in %d minutes", rec.RemainingMinutes(now))
	}
	if rec.LockExpired(now) {
		if err := s.lockouts.Clear(ctx, identifier); err != nil {
			return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "authentication unavailable")
		}
	}
	return nil
}

func (s *Service) verifyCredentials(ctx context.Context, identifier, password string) (*idmodels.User, error) {
	user, err := s.users.FindByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "authentication unavailable")
	}
	if !secrets.Matches(password, user.PasswordHash) || !user.Active {
		return nil, errInvalidCredentials
	}
	return user, nil
}

// fail counts a rejected attempt, locks the identifier once the threshold is
// reached and returns cause.
func (s *Service) fail(ctx context.Context, identifier, ip, outcome string, cause error) error {
	if dErrors.HasCode(cause, dErrors.CodePersistenceUnavailable) {
		return cause
	}
	s.metrics.IncAttempt(outcome)
	now := s.clock.Now()
	rec, err := s.lockouts.RecordFailure(ctx, identifier, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record authentication failure", "error", err)
		return cause
	}
	s.logger.WarnContext(ctx, "authentication failed",
		"reason", dErrors.CodeOf(cause),
		"ip", privacy.AnonymizeIP(ip),
	)
	if rec.FailureCount >= s.lockoutAttempts && !rec.IsLocked(now) {
		until := now.Add(s.lockoutDuration)
		if err := s.lockouts.Lock(ctx, identifier, until); err != nil {
			s.logger.ErrorContext(ctx, "failed to apply lockout", "error", err)
			return cause
		}
		s.metrics.Lockouts.Inc()
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			"ip", privacy.AnonymizeIP(ip),
			"locked_until", until.Format(time.RFC3339),
		)
	}
	return cause
}

// startSession evicts the oldest sessions of user beyond the cap and stores
// a new one.
func (s *Service) startSession(ctx context.Context, user *idmodels.User, creds models.Credentials, mfaVerified bool) (*models.Session, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if err := s.evictOldest(ctx, user.ID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	sess := &models.Session{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Email:          user.Email,
		Roles:          []string{user.Role},
		IPAddress:      creds.IPAddress,
		UserAgent:      creds.UserAgent,
		MFAVerified:    mfaVerified,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.maxSession),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to create session")
	}
	s.metrics.SessionsCreated.Inc()
	return sess, nil
}

func (s *Service) evictOldest(ctx context.Context, userID string) error {
	existing, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to list sessions")
	}
	excess := len(existing) - s.concurrentSessions + 1
	if excess <= 0 {
		return nil
	}
	sortOldestFirst(existing)
	for _, old := range existing[:excess] {
		if err := s.sessions.Delete(ctx, old.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to evict session")
		}
		s.metrics.SessionsEvicted.Inc()
		s.logger.InfoContext(ctx, "session evicted by concurrent session cap", "user_id", userID, "session_id", old.ID)
	}
	return nil
}
