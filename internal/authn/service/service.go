// Package service authenticates users, runs the lockout state machine and
// owns the session lifecycle.
//
// Every error returned here gates access and carries a domain-errors code;
// messages stay generic so that callers cannot tell which check failed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"bastion/internal/authn/metrics"
	"bastion/internal/authn/models"
	"bastion/internal/authn/token"
	idmodels "bastion/internal/identity/models"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (*idmodels.User, error)
	FindByEmail(ctx context.Context, email string) (*idmodels.User, error)
	Update(ctx context.Context, u *idmodels.User) error
}

type MFAStore interface {
	Save(ctx context.Context, setup *idmodels.MFASetup) error
	FindByUserID(ctx context.Context, userID string) (*idmodels.MFASetup, error)
	ConsumeBackupCode(ctx context.Context, userID, hash string) error
	MarkVerified(ctx context.Context, userID string, at time.Time) error
}

// LockoutStore counts failures. Get returns nil for an unknown identifier.
type LockoutStore interface {
	Get(ctx context.Context, identifier string) (*models.Lockout, error)
	RecordFailure(ctx context.Context, identifier string, now time.Time) (*models.Lockout, error)
	Lock(ctx context.Context, identifier string, until time.Time) error
	Clear(ctx context.Context, identifier string) error
}

type SessionStore interface {
	Create(ctx context.Context, sess *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time, idle time.Duration) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}

type Stores struct {
	Users    UserStore
	MFA      MFAStore
	Lockouts LockoutStore
	Sessions SessionStore
}

// PasswordPolicy lists the rules new passwords must meet.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumbers   bool
	RequireSymbols   bool
}

const (
	defaultMaxSession         = 8 * time.Hour
	defaultInactivity         = 30 * time.Minute
	defaultConcurrentSessions = 3
	defaultLockoutAttempts    = 5
	defaultLockoutDuration    = 30 * time.Minute
	defaultTOTPIssuer         = "Bastion"
	backupCodeCount           = 10
	backupCodeLength          = 8
)

type Service struct {
	users    UserStore
	mfa      MFAStore
	lockouts LockoutStore
	sessions SessionStore
	tokens   *token.Issuer
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mfaRequired        map[string]bool
	password           PasswordPolicy
	maxSession         time.Duration
	inactivity         time.Duration
	concurrentSessions int
	lockoutAttempts    int
	lockoutDuration    time.Duration
	totpIssuer         string
	bcryptCost         int

	// sessionMu serializes the evict-then-create step so concurrent logins
	// cannot exceed the session cap.
	sessionMu sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMFARequired sets which roles must present a second factor.
func WithMFARequired(byRole map[string]bool) Option {
	return func(s *Service) {
		s.mfaRequired = maps.Clone(byRole)
	}
}

func WithPasswordPolicy(p PasswordPolicy) Option {
	return func(s *Service) {
		s.password = p
	}
}

// WithSessionLimits sets the absolute lifetime, the inactivity timeout and
// the number of concurrent sessions per user. Non-positive values keep the
// defaults.
func WithSessionLimits(maxDuration, inactivity time.Duration, concurrent int) Option {
	return func(s *Service) {
		if maxDuration > 0 {
			s.maxSession = maxDuration
		}
		if inactivity > 0 {
			s.inactivity = inactivity
		}
		if concurrent > 0 {
			s.concurrentSessions = concurrent
		}
	}
}

// WithLockout locks an identifier for duration after attempts consecutive
// failures.
func WithLockout(attempts int, duration time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.lockoutAttempts = attempts
		}
		if duration > 0 {
			s.lockoutDuration = duration
		}
	}
}

func WithTOTPIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.totpIssuer = issuer
		}
	}
}

// WithBcryptCost sets the cost used for password and backup code hashes.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(stores Stores, tokens *token.Issuer, opts ...Option) (*Service, error) {
	if stores.Users == nil || stores.MFA == nil || stores.Lockouts == nil || stores.Sessions == nil {
		return nil, errors.New("authentication stores are required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	svc := &Service{
		users:              stores.Users,
		mfa:                stores.MFA,
		lockouts:           stores.Lockouts,
		sessions:           stores.Sessions,
		tokens:             tokens,
		clock:              clock.New(),
		logger:             slog.New(slog.DiscardHandler),
		mfaRequired:        map[string]bool{},
		password:           PasswordPolicy{MinLength: 12, RequireUppercase: true, RequireLowercase: true, RequireNumbers: true, RequireSymbols: true},
		maxSession:         defaultMaxSession,
		inactivity:         defaultInactivity,
		concurrentSessions: defaultConcurrentSessions,
		lockoutAttempts:    defaultLockoutAttempts,
		lockoutDuration:    defaultLockoutDuration,
		totpIssuer:         defaultTOTPIssuer,
		bcryptCost:         bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.metrics == nil {
		svc.metrics = metrics.New(prometheus.NewRegistry())
	}
	return svc, nil
}

// MFARequired reports whether role must present a second factor.
func (s *Service) MFARequired(role string) bool {
	return s.mfaRequired[role]
}
