package models

import (
	"slices"
	"time"
)

// Credentials is one login attempt.
type Credentials struct {
	Email     string
	Password  string
	MFACode   string
	IPAddress string
	UserAgent string
}

// AuthResult is returned by a successful authentication.
type AuthResult struct {
	UserID      string
	SessionID   string
	Roles       []string
	MFAVerified bool
	Token       string
	ExpiresAt   time.Time
}

// Session is an authenticated login. It expires at ExpiresAt or after the
// configured inactivity since LastActivityAt, whichever comes first.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Roles          []string  `json:"roles"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	MFAVerified    bool      `json:"mfa_verified"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Roles = slices.Clone(s.Roles)
	return &cp
}

// IsExpired reports whether the absolute lifetime has passed.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsIdle reports whether the session saw no activity for longer than timeout.
func (s *Session) IsIdle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActivityAt) > timeout
}

// Lockout tracks consecutive failed logins for one identifier.
type Lockout struct {
	Identifier    string
	FailureCount  int
	LastFailureAt time.Time
	LockedUntil   *time.Time
}

// IsLocked reports whether the lock is still in force at now.
func (l *Lockout) IsLocked(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// LockExpired reports whether a lock was applied and has since run out.
func (l *Lockout) LockExpired(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && !now.Before(*l.LockedUntil)
}

// RemainingMinutes is the lock time left, rounded up to whole minutes.
func (l *Lockout) RemainingMinutes(now time.Time) int {
	if !l.IsLocked(now) {
		return 0
	}
	left := l.LockedUntil.Sub(now)
	return int((left + time.Minute - 1) / time.Minute)
}

// MFAEnrollment is handed to the user once when MFA is set up. The backup
// codes are plaintext here and stored only as hashes.
type MFAEnrollment struct {
	Secret      string
	URL         string
	BackupCodes []string
}

// PasswordCheck lists every policy rule a password breaks.
type PasswordCheck struct {
	Valid  bool
	Errors []string
}
