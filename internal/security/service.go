// Package security is the single entry point of the security layer.
//
// Every operation delegates to one specialised service and then forwards the
// resulting SecurityEvent to audit and monitoring through LogSecurityEvent.
// High and critical events additionally raise an alert.
package security

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Authenticator,Authorizer,Encryptor,Auditor,Monitor,ComplianceAssessor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	auditmodels "bastion/internal/audit/models"
	authnmodels "bastion/internal/authn/models"
	compmodels "bastion/internal/compliance/models"
	monmodels "bastion/internal/monitoring/models"
	"bastion/internal/platform/config"
	"bastion/internal/platform/scheduler"
	"bastion/pkg/domain"
)

const tracerName = "bastion/internal/security"

type Authenticator interface {
	Authenticate(ctx context.Context, creds authnmodels.Credentials) (*authnmodels.AuthResult, error)
	ValidateSession(ctx context.Context, sessionID string) (*authnmodels.Session, error)
	Logout(ctx context.Context, sessionID string) error
	CleanupExpiredSessions(ctx context.Context) (int, error)
	LockdownSystem(ctx context.Context) (int, error)
}

type Authorizer interface {
	HasPermission(ctx context.Context, userID, permission string, secCtx *domain.SecurityContext, resourceID string) bool
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
	SweepExpired() int
}

type Encryptor interface {
	EncryptValue(ctx context.Context, v any, contextID string) (string, error)
	DecryptValue(ctx context.Context, envelope, contextID string, out any) error
	EncryptSensitiveFields(ctx context.Context, record map[string]any, contextID string) (map[string]any, error)
	RotateKeys(ctx context.Context) (int, error)
}

type Auditor interface {
	LogEvent(ctx context.Context, event domain.SecurityEvent) auditmodels.Outcome
	SweepRetention(ctx context.Context) (map[auditmodels.Category]int64, error)
}

type Monitor interface {
	ProcessSecurityEvent(ctx context.Context, ev domain.SecurityEvent)
	TriggerAlert(ctx context.Context, alert *monmodels.SecurityAlert) (*monmodels.SecurityAlert, error)
	TriggerEmergencyAlert(ctx context.Context, reason string) (*monmodels.SecurityAlert, error)
	TriggerIncidentResponse(ctx context.Context, incidentType string, details domain.Details) (*monmodels.Incident, error)
	DetectAnomalies(ctx context.Context, secCtx domain.SecurityContext) []monmodels.Anomaly
	GetSecurityMetrics(ctx context.Context) (*monmodels.SecurityMetrics, error)
	RecordMetric(name string, value float64, tags map[string]string)
	CollectMetrics(ctx context.Context)
	RunAnomalyDetection(ctx context.Context) int
	Run(ctx context.Context) error
	Shutdown()
}

type ComplianceAssessor interface {
	ValidateCompliance(ctx context.Context) (*compmodels.Assessment, error)
}

// Deps are the specialised services behind the façade. All are required.
type Deps struct {
	Authn      Authenticator
	Authz      Authorizer
	Encryption Encryptor
	Audit      Auditor
	Monitoring Monitor
	Compliance ComplianceAssessor
}

type Service struct {
	authn      Authenticator
	authz      Authorizer
	encryption Encryptor
	audit      Auditor
	monitoring Monitor
	compliance ComplianceAssessor

	cfg       *config.Config
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	scheduler *scheduler.Scheduler

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	started bool
	closed  bool
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

// WithConfig sets the configuration returned, redacted, by GetSecurityConfig.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithScheduler sets the scheduler the background tasks are registered on.
func WithScheduler(sch *scheduler.Scheduler) Option {
	return func(s *Service) {
		s.scheduler = sch
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Authn == nil:
		return nil, errors.New("authentication service is required")
	case deps.Authz == nil:
		return nil, errors.New("authorization service is required")
	case deps.Encryption == nil:
		return nil, errors.New("encryption service is required")
	case deps.Audit == nil:
		return nil, errors.New("audit service is required")
	case deps.Monitoring == nil:
		return nil, errors.New("monitoring service is required")
	case deps.Compliance == nil:
		return nil, errors.New("compliance service is required")
	}
	s := &Service{
		authn:      deps.Authn,
		authz:      deps.Authz,
		encryption: deps.Encryption,
		audit:      deps.Audit,
		monitoring: deps.Monitoring,
		compliance: deps.Compliance,
		clock:      clock.New(),
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scheduler == nil {
		s.scheduler = scheduler.New(prometheus.NewRegistry(),
			scheduler.WithClock(s.clock), scheduler.WithLogger(s.logger))
	}
	return s, nil
}
