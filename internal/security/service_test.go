package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	auditmodels "bastion/internal/audit/models"
	authnmodels "bastion/internal/authn/models"
	compmodels "bastion/internal/compliance/models"
	monmodels "bastion/internal/monitoring/models"
	"bastion/internal/platform/config"
	"bastion/internal/security/mocks"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
)

type SecurityServiceSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	clock      *clock.Mock
	spans      *tracetest.SpanRecorder
	authn      *mocks.MockAuthenticator
	authz      *mocks.MockAuthorizer
	encryption *mocks.MockEncryptor
	audit      *mocks.MockAuditor
	monitoring *mocks.MockMonitor
	compliance *mocks.MockComplianceAssessor
	cfg        *config.Config
	svc        *Service

	events []domain.SecurityEvent
	alerts []*monmodels.SecurityAlert
}

func TestSecurityServiceSuite(t *testing.T) {
	suite.Run(t, new(SecurityServiceSuite))
}

func (s *SecurityServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.clock = clock.NewMock()
	s.clock.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	s.spans = tracetest.NewSpanRecorder()
	s.authn = mocks.NewMockAuthenticator(s.ctrl)
	s.authz = mocks.NewMockAuthorizer(s.ctrl)
	s.encryption = mocks.NewMockEncryptor(s.ctrl)
	s.audit = mocks.NewMockAuditor(s.ctrl)
	s.monitoring = mocks.NewMockMonitor(s.ctrl)
	s.compliance = mocks.NewMockComplianceAssessor(s.ctrl)
	s.events = nil
	s.alerts = nil

	s.cfg = config.Default()
	s.cfg.Keys.MasterKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	s.cfg.Postgres.URL = "postgres://bastion:hunter2@db:5432/bastion"

	var err error
	s.svc, err = New(Deps{
		Authn:      s.authn,
		Authz:      s.authz,
		Encryption: s.encryption,
		Audit:      s.audit,
		Monitoring: s.monitoring,
		Compliance: s.compliance,
	},
		WithClock(s.clock),
		WithConfig(s.cfg),
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))),
	)
	s.Require().NoError(err)
}

// expectEvents records every event forwarded to audit and monitoring.
func (s *SecurityServiceSuite) expectEvents(n int) {
	s.audit.EXPECT().LogEvent(gomock.Any(), gomock.Any()).Times(n).
		DoAndReturn(func(_ context.Context, ev domain.SecurityEvent) auditmodels.Outcome {
			s.events = append(s.events, ev)
			return auditmodels.Outcome{}
		})
	s.monitoring.EXPECT().ProcessSecurityEvent(gomock.Any(), gomock.Any()).Times(n)
}

func (s *SecurityServiceSuite) expectAlerts(n int) {
	s.monitoring.EXPECT().TriggerAlert(gomock.Any(), gomock.Any()).Times(n).
		DoAndReturn(func(_ context.Context, a *monmodels.SecurityAlert) (*monmodels.SecurityAlert, error) {
			s.alerts = append(s.alerts, a)
			return a, nil
		})
}

func (s *SecurityServiceSuite) spanNamed(name string) sdktrace.ReadOnlySpan {
	for _, span := range s.spans.Ended() {
		if span.Name() == name {
			return span
		}
	}
	s.FailNow("span not recorded", name)
	return nil
}

func (s *SecurityServiceSuite) TestNew() {
	_, err := New(Deps{})
	s.ErrorContains(err, "authentication service is required")

	_, err = New(Deps{Authn: s.authn, Authz: s.authz, Encryption: s.encryption, Audit: s.audit, Monitoring: s.monitoring})
	s.ErrorContains(err, "compliance service is required")
}

func (s *SecurityServiceSuite) TestAuthenticate() {
	creds := authnmodels.Credentials{Email: "alice@example.com", Password: "pw", IPAddress: "203.0.113.7", UserAgent: "curl"}

	s.Run("success builds the security context", func() {
		s.authn.EXPECT().Authenticate(gomock.Any(), creds).Return(&authnmodels.AuthResult{
			UserID: "u1", SessionID: "sess-1", Roles: []string{"user"}, MFAVerified: false,
			Token: "tok", ExpiresAt: s.clock.Now().Add(8 * time.Hour),
		}, nil)
		s.authz.EXPECT().GetUserPermissions(gomock.Any(), "u1").Return([]string{"missions:read"}, nil)
		s.monitoring.EXPECT().RecordMetric("auth_duration", gomock.Any(), gomock.Nil())
		s.expectEvents(1)

		login, err := s.svc.Authenticate(s.ctx, creds)
		s.Require().NoError(err)
		s.Equal("u1", login.UserID)
		s.Equal("sess-1", login.SessionID)
		s.Equal([]string{"missions:read"}, login.Permissions)
		s.Equal("203.0.113.7", login.IPAddress)
		s.Equal(s.clock.Now(), login.IssuedAt)
		s.Equal("tok", login.Token)

		s.Require().Len(s.events, 1)
		ev := s.events[0]
		s.Equal(domain.EventAuthentication, ev.Type)
		s.Equal("login", ev.Action)
		s.Equal(domain.ResultSuccess, ev.Result)
		s.Equal(s.clock.Now(), ev.Timestamp)
		s.Equal(otelcodes.Unset, s.spanNamed("security.Authenticate").Status().Code)
	})

	s.Run("lockout is audited as blocked and alerts", func() {
		s.events = nil
		s.authn.EXPECT().Authenticate(gomock.Any(), creds).
			Return(nil, dErrors.New(dErrors.CodeAccountLocked, "account locked, try again in 30 minutes"))
		s.monitoring.EXPECT().RecordMetric("auth_duration", gomock.Any(), gomock.Nil())
		s.expectEvents(1)
		s.expectAlerts(1)

		_, err := s.svc.Authenticate(s.ctx, creds)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
		s.Require().Len(s.events, 1)
		s.Equal("account_locked", s.events[0].Action)
		s.Equal(domain.ResultBlocked, s.events[0].Result)
		s.Equal(string(dErrors.CodeAccountLocked), s.events[0].Details["reason"])
		s.Require().Len(s.alerts, 1)
		s.Equal(domain.SeverityHigh, s.alerts[0].Severity)
	})

	s.Run("mfa challenge is a low severity event", func() {
		s.events = nil
		s.authn.EXPECT().Authenticate(gomock.Any(), creds).
			Return(nil, dErrors.New(dErrors.CodeMFARequired, "mfa code required"))
		s.monitoring.EXPECT().RecordMetric("auth_duration", gomock.Any(), gomock.Nil())
		s.expectEvents(1)

		_, err := s.svc.Authenticate(s.ctx, creds)
		s.True(dErrors.HasCode(err, dErrors.CodeMFARequired))
		s.Equal("mfa_challenge", s.events[0].Action)
		s.Equal(domain.SeverityLow, s.events[0].Severity)
	})

	s.Run("wrong password records a failure on the span", func() {
		s.spans = tracetest.NewSpanRecorder()
		s.svc.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans)).Tracer(tracerName)
		s.authn.EXPECT().Authenticate(gomock.Any(), creds).
			Return(nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials"))
		s.monitoring.EXPECT().RecordMetric("auth_duration", gomock.Any(), gomock.Nil())
		s.expectEvents(1)

		_, err := s.svc.Authenticate(s.ctx, creds)
		s.Error(err)
		s.Equal(otelcodes.Error, s.spanNamed("security.Authenticate").Status().Code)
	})
}

func (s *SecurityServiceSuite) TestAuthorize() {
	secCtx := domain.SecurityContext{UserID: "u1", SessionID: "sess-1", IPAddress: "203.0.113.7"}

	s.Run("granted", func() {
		s.authz.EXPECT().HasPermission(gomock.Any(), "u1", "missions:read", gomock.Any(), "m-1").Return(true)
		s.expectEvents(1)

		s.True(s.svc.Authorize(s.ctx, secCtx, "missions", "read", "m-1"))
		s.Equal("read_missions", s.events[0].Action)
		s.Equal(domain.ResultSuccess, s.events[0].Result)
		s.Equal("m-1", s.events[0].Details["resource_id"])
	})

	s.Run("denied", func() {
		s.events = nil
		s.authz.EXPECT().HasPermission(gomock.Any(), "u1", "users:delete", gomock.Any(), "").Return(false)
		s.expectEvents(1)

		s.False(s.svc.Authorize(s.ctx, secCtx, "users", "delete", ""))
		s.Equal(domain.ResultBlocked, s.events[0].Result)
		s.Equal(domain.SeverityMedium, s.events[0].Severity)
	})
}

func (s *SecurityServiceSuite) TestEncryption() {
	secCtx := domain.SecurityContext{UserID: "u1", SessionID: "sess-1"}

	s.Run("encrypt under the user context", func() {
		s.encryption.EXPECT().EncryptValue(gomock.Any(), "secret", "u1").Return("envelope", nil)
		s.expectEvents(1)

		out, err := s.svc.EncryptSensitiveData(s.ctx, "secret", secCtx)
		s.Require().NoError(err)
		s.Equal("envelope", out)
		s.Equal(domain.EventDataAccess, s.events[0].Type)
		s.Equal("encrypt", s.events[0].Action)
	})

	s.Run("decrypt failure is a high security event", func() {
		s.events = nil
		var out string
		s.encryption.EXPECT().DecryptValue(gomock.Any(), "bad", "u1", &out).
			Return(dErrors.New(dErrors.CodeIntegrityViolation, "integrity check failed"))
		s.expectEvents(1)
		s.expectAlerts(1)

		err := s.svc.DecryptSensitiveData(s.ctx, "bad", secCtx, &out)
		s.True(dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
		s.Equal(domain.EventSecurity, s.events[0].Type)
		s.Equal("decryption_failure", s.events[0].Action)
		s.Equal(domain.SeverityHigh, s.events[0].Severity)
	})

	s.Run("sensitive fields", func() {
		s.events = nil
		record := map[string]any{"email": "a@b.c", "name": "A"}
		s.encryption.EXPECT().EncryptSensitiveFields(gomock.Any(), record, "u1").
			Return(map[string]any{"email": "env", "name": "A"}, nil)
		s.expectEvents(1)

		out, err := s.svc.EncryptSensitiveFields(s.ctx, record, secCtx)
		s.Require().NoError(err)
		s.Equal("env", out["email"])
	})
}

func (s *SecurityServiceSuite) TestLogSecurityEventSurvivesAuditFailure() {
	s.audit.EXPECT().LogEvent(gomock.Any(), gomock.Any()).
		Return(auditmodels.Outcome{Err: errors.New("db down")})
	s.monitoring.EXPECT().ProcessSecurityEvent(gomock.Any(), gomock.Any())
	s.monitoring.EXPECT().TriggerAlert(gomock.Any(), gomock.Any()).Return(nil, errors.New("alerts down"))

	s.NotPanics(func() {
		s.svc.LogSecurityEvent(s.ctx, domain.SecurityEvent{
			Type: domain.EventSecurity, Action: "probe", Result: domain.ResultFailure, Severity: domain.SeverityCritical,
		})
	})
}

func (s *SecurityServiceSuite) TestDetectAnomalies() {
	secCtx := domain.SecurityContext{UserID: "u1", IPAddress: "198.51.100.9"}
	s.monitoring.EXPECT().DetectAnomalies(gomock.Any(), secCtx).Return([]monmodels.Anomaly{
		{Type: monmodels.AnomalyUnusualAccessTime, Severity: domain.SeverityMedium, Confidence: 0.6},
		{Type: monmodels.AnomalySuspiciousActivity, Severity: domain.SeverityHigh, Confidence: 0.9},
	})
	s.expectEvents(2)
	s.expectAlerts(1)

	found := s.svc.DetectAnomalies(s.ctx, secCtx)
	s.Len(found, 2)
	s.Require().Len(s.events, 2)
	s.Equal("anomaly_detected", s.events[1].Action)
	s.Equal(monmodels.AnomalySuspiciousActivity, s.events[1].Details["anomaly_type"])
	s.Equal("0.90", s.events[1].Details["confidence"])
}

func (s *SecurityServiceSuite) TestHandleSecurityIncident() {
	secCtx := domain.SecurityContext{UserID: "a1"}
	details := domain.Details{"source": "ids"}
	inc := &monmodels.Incident{ID: "INC_1", Type: "breach"}

	s.expectEvents(1)
	s.expectAlerts(1)
	gomock.InOrder(
		s.monitoring.EXPECT().TriggerIncidentResponse(gomock.Any(), "breach", details).Return(inc, nil),
		s.authn.EXPECT().LockdownSystem(gomock.Any()).Return(7, nil),
	)

	got, err := s.svc.HandleSecurityIncident(s.ctx, "breach", details, secCtx)
	s.Require().NoError(err)
	s.Equal("INC_1", got.ID)
	s.Equal("incident_detected", s.events[0].Action)
	s.Equal(domain.SeverityCritical, s.events[0].Severity)
	s.Equal("breach", s.events[0].Details["incident_type"])

	s.Run("lockdown still happens when the response fails", func() {
		s.expectEvents(1)
		s.expectAlerts(1)
		s.monitoring.EXPECT().TriggerIncidentResponse(gomock.Any(), "breach", details).
			Return(nil, dErrors.New(dErrors.CodePersistenceUnavailable, "failed to persist incident"))
		s.authn.EXPECT().LockdownSystem(gomock.Any()).Return(0, nil)

		_, err := s.svc.HandleSecurityIncident(s.ctx, "breach", details, secCtx)
		s.True(dErrors.HasCode(err, dErrors.CodePersistenceUnavailable))
	})
}

func (s *SecurityServiceSuite) TestEmergencyLockdown() {
	s.expectEvents(1)
	s.expectAlerts(1)
	gomock.InOrder(
		s.authn.EXPECT().LockdownSystem(gomock.Any()).Return(4, nil),
		s.monitoring.EXPECT().TriggerEmergencyAlert(gomock.Any(), "ransomware").
			Return(&monmodels.SecurityAlert{ID: "al-1"}, nil),
	)

	n, err := s.svc.EmergencyLockdown(s.ctx, "ransomware", domain.SecurityContext{UserID: "a1"})
	s.Require().NoError(err)
	s.Equal(4, n)
	s.Equal("emergency_lockdown", s.events[0].Action)
	s.Equal("ransomware", s.events[0].Details["reason"])
}

func (s *SecurityServiceSuite) TestMaintenance() {
	s.Run("key rotation", func() {
		s.encryption.EXPECT().RotateKeys(gomock.Any()).Return(3, nil)
		s.expectEvents(1)

		n, err := s.svc.RotateKeys(s.ctx)
		s.Require().NoError(err)
		s.Equal(3, n)
		s.Equal("3", s.events[0].Details["rotated"])
		s.Equal(domain.EventSystem, s.events[0].Type)
	})

	s.Run("failed key rotation alerts", func() {
		s.events = nil
		s.encryption.EXPECT().RotateKeys(gomock.Any()).
			Return(0, dErrors.New(dErrors.CodePersistenceUnavailable, "store down"))
		s.expectEvents(1)
		s.expectAlerts(1)

		_, err := s.svc.RotateKeys(s.ctx)
		s.Error(err)
		s.Equal(domain.ResultFailure, s.events[0].Result)
	})

	s.Run("session cleanup", func() {
		s.events = nil
		s.authn.EXPECT().CleanupExpiredSessions(gomock.Any()).Return(2, nil)
		s.expectEvents(1)

		n, err := s.svc.CleanupExpiredSessions(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, n)
		s.Equal("2", s.events[0].Details["cleaned_sessions"])
	})
}

func (s *SecurityServiceSuite) TestPassThroughs() {
	s.compliance.EXPECT().ValidateCompliance(gomock.Any()).Return(&compmodels.Assessment{ID: "as-1"}, nil)
	a, err := s.svc.ValidateCompliance(s.ctx)
	s.Require().NoError(err)
	s.Equal("as-1", a.ID)

	s.monitoring.EXPECT().GetSecurityMetrics(gomock.Any()).Return(&monmodels.SecurityMetrics{}, nil)
	_, err = s.svc.GetSecurityMetrics(s.ctx)
	s.NoError(err)

	s.authn.EXPECT().ValidateSession(gomock.Any(), "sess-1").
		Return(nil, dErrors.New(dErrors.CodeSessionExpired, "session expired"))
	_, err = s.svc.ValidateSession(s.ctx, "sess-1")
	s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))

	s.authn.EXPECT().Logout(gomock.Any(), "sess-1").Return(nil)
	s.expectEvents(1)
	s.NoError(s.svc.Logout(s.ctx, domain.SecurityContext{UserID: "u1", SessionID: "sess-1"}))
	s.Equal("logout", s.events[0].Action)
}

func (s *SecurityServiceSuite) TestGetSecurityConfigIsRedacted() {
	got := s.svc.GetSecurityConfig()
	s.Equal("****", got.Keys.MasterKey)
	s.Equal("<not set>", got.Keys.AuditSigningKey)
	s.Equal("postgres://bastion:****@db:5432/bastion", got.Postgres.URL)
	s.NotEqual("****", s.cfg.Keys.MasterKey, "original config untouched")
}

func (s *SecurityServiceSuite) TestStartAndClose() {
	s.monitoring.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.monitoring.EXPECT().Shutdown()

	s.Require().NoError(s.svc.Start(s.ctx))
	s.Error(s.svc.Start(s.ctx))

	s.Run("tasks can be run on demand", func() {
		s.authn.EXPECT().CleanupExpiredSessions(gomock.Any()).Return(0, nil)
		s.expectEvents(1)
		s.NoError(s.svc.RunTask(s.ctx, TaskSessionCleanup))

		s.authz.EXPECT().SweepExpired().Return(5)
		s.NoError(s.svc.RunTask(s.ctx, TaskPermissionSweep))

		s.audit.EXPECT().SweepRetention(gomock.Any()).Return(map[auditmodels.Category]int64{}, nil)
		s.NoError(s.svc.RunTask(s.ctx, TaskAuditRetention))
	})

	s.NoError(s.svc.Close())
	s.NoError(s.svc.Close())
}
