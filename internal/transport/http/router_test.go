package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	auditmodels "bastion/internal/audit/models"
	authnmodels "bastion/internal/authn/models"
	compmodels "bastion/internal/compliance/models"
	monmodels "bastion/internal/monitoring/models"
	"bastion/internal/security"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
)

type fakeSecurity struct {
	grants     map[string][]string
	creds      authnmodels.Credentials
	loginErr   error
	loggedOut  string
	lockReason string
	lockedBy   string
}

func (f *fakeSecurity) Authenticate(_ context.Context, creds authnmodels.Credentials) (*security.Login, error) {
	f.creds = creds
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &security.Login{
		SecurityContext: domain.SecurityContext{UserID: "u1", SessionID: "sess-1", Roles: []string{"admin"}, MFAVerified: true},
		Token:           "tok-admin",
		ExpiresAt:       time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeSecurity) Logout(_ context.Context, secCtx domain.SecurityContext) error {
	f.loggedOut = secCtx.SessionID
	return nil
}

func (f *fakeSecurity) Authorize(_ context.Context, secCtx domain.SecurityContext, resource, action, _ string) bool {
	for _, role := range secCtx.Roles {
		for _, p := range f.grants[role] {
			if p == "*" || p == resource+":"+action {
				return true
			}
		}
	}
	return false
}

func (f *fakeSecurity) GetSecurityMetrics(context.Context) (*monmodels.SecurityMetrics, error) {
	return &monmodels.SecurityMetrics{GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeSecurity) EmergencyLockdown(_ context.Context, reason string, secCtx domain.SecurityContext) (int, error) {
	f.lockReason, f.lockedBy = reason, secCtx.UserID
	return 7, nil
}

func (f *fakeSecurity) ValidateCompliance(context.Context) (*compmodels.Assessment, error) {
	return &compmodels.Assessment{ID: "as-2"}, nil
}

type fakeSessions map[string]domain.SecurityContext

func (f fakeSessions) ResolveToken(_ context.Context, token string) (domain.SecurityContext, error) {
	secCtx, ok := f[token]
	if !ok {
		return domain.SecurityContext{}, dErrors.New(dErrors.CodeSessionInvalid, "invalid session")
	}
	return secCtx, nil
}

type fakeAudit struct {
	query  auditmodels.Query
	result *auditmodels.IntegrityResult
}

func (f *fakeAudit) SearchLogs(_ context.Context, q auditmodels.Query) ([]*auditmodels.AuditLog, error) {
	f.query = q
	return []*auditmodels.AuditLog{{ID: "log-1"}, {ID: "log-2"}}, nil
}

func (f *fakeAudit) VerifyIntegrity(context.Context, string) (*auditmodels.IntegrityResult, error) {
	return f.result, nil
}

type fakeAlerts struct {
	transitioned map[string]string
}

func (f *fakeAlerts) OpenAlerts(context.Context) ([]*monmodels.SecurityAlert, error) {
	return []*monmodels.SecurityAlert{{ID: "al-1", Status: monmodels.AlertOpen}}, nil
}

func (f *fakeAlerts) set(id, by string, status monmodels.AlertStatus) (*monmodels.SecurityAlert, error) {
	if id != "al-1" {
		return nil, dErrors.New(dErrors.CodeNotFound, "alert not found")
	}
	f.transitioned[id] = by
	return &monmodels.SecurityAlert{ID: id, Status: status}, nil
}

func (f *fakeAlerts) Acknowledge(_ context.Context, id, by string) (*monmodels.SecurityAlert, error) {
	return f.set(id, by, monmodels.AlertAcknowledged)
}

func (f *fakeAlerts) Resolve(_ context.Context, id, by string) (*monmodels.SecurityAlert, error) {
	return f.set(id, by, monmodels.AlertResolved)
}

func (f *fakeAlerts) MarkFalsePositive(_ context.Context, id, by string) (*monmodels.SecurityAlert, error) {
	return f.set(id, by, monmodels.AlertFalsePositive)
}

type fakeCompliance struct {
	latest *compmodels.Assessment
}

func (f *fakeCompliance) LatestAssessment(context.Context) (*compmodels.Assessment, error) {
	if f.latest == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no compliance assessment yet")
	}
	return f.latest, nil
}

func (f *fakeCompliance) Controls(standard string) []*compmodels.Control {
	return []*compmodels.Control{{ID: "RGPD-ART-32", Standard: standard}}
}

func (f *fakeCompliance) GenerateComplianceReport(_ context.Context, standard string) (*compmodels.Report, error) {
	if standard != "RGPD" {
		return nil, dErrors.Newf(dErrors.CodeValidation, "standard %s is not enabled", standard)
	}
	return &compmodels.Report{ID: "rep-1", Standard: standard}, nil
}

type RouterSuite struct {
	suite.Suite
	security   *fakeSecurity
	audit      *fakeAudit
	alerts     *fakeAlerts
	compliance *fakeCompliance
	router     http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.security = &fakeSecurity{grants: map[string][]string{
		"admin":   {"*"},
		"auditor": {"audit:read", "reports:read"},
	}}
	s.audit = &fakeAudit{result: &auditmodels.IntegrityResult{Valid: true, Checked: 12}}
	s.alerts = &fakeAlerts{transitioned: map[string]string{}}
	s.compliance = &fakeCompliance{}

	h, err := New(Deps{
		Security: s.security,
		Sessions: fakeSessions{
			"tok-admin":   {UserID: "a1", SessionID: "sess-a", Roles: []string{"admin"}},
			"tok-auditor": {UserID: "au1", SessionID: "sess-b", Roles: []string{"auditor"}},
		},
		Audit:      s.audit,
		Alerts:     s.alerts,
		Compliance: s.compliance,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "bastion_up 1\n")
		}),
		Readiness: map[string]ReadinessCheck{
			"postgres": func(context.Context) error { return nil },
		},
	})
	s.Require().NoError(err)
	s.router = h.Router()
}

func (s *RouterSuite) do(method, target, token, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rd)
	r.RemoteAddr = "192.0.2.10:41000"
	r.Header.Set("User-Agent", "ops-cli/1.0")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(w.Body).Decode(v))
}

func (s *RouterSuite) TestNewRequiresDeps() {
	_, err := New(Deps{})
	s.ErrorContains(err, "security service is required")
}

func (s *RouterSuite) TestPublicRoutes() {
	s.Run("health", func() {
		s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", "", "").Code)
	})

	s.Run("readiness", func() {
		w := s.do(http.MethodGet, "/readyz", "", "")
		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"postgres":"ok"}`, w.Body.String())
	})

	s.Run("metrics", func() {
		w := s.do(http.MethodGet, "/metrics", "", "")
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), "bastion_up")
	})
}

func (s *RouterSuite) TestLogin() {
	s.Run("returns the session token", func() {
		w := s.do(http.MethodPost, "/auth/login", "", `{"email":"a@example.com","password":"pw","mfa_code":"123456"}`)
		s.Require().Equal(http.StatusOK, w.Code)

		var resp loginResponse
		s.decode(w, &resp)
		s.Equal("tok-admin", resp.Token)
		s.Equal("sess-1", resp.SessionID)
		s.Equal("192.0.2.10", s.security.creds.IPAddress)
		s.Equal("ops-cli/1.0", s.security.creds.UserAgent)
		s.Equal("123456", s.security.creds.MFACode)
	})

	s.Run("missing fields", func() {
		w := s.do(http.MethodPost, "/auth/login", "", `{"email":"a@example.com"}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("locked account", func() {
		s.security.loginErr = dErrors.New(dErrors.CodeAccountLocked, "account locked")
		defer func() { s.security.loginErr = nil }()
		w := s.do(http.MethodPost, "/auth/login", "", `{"email":"a@example.com","password":"pw"}`)
		s.Equal(http.StatusLocked, w.Code)
		s.Contains(w.Body.String(), "account_locked")
	})
}

func (s *RouterSuite) TestAuthentication() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/audit/logs", "", "").Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/audit/logs", "forged", "").Code)

	w := s.do(http.MethodPost, "/auth/logout", "tok-auditor", "")
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("sess-b", s.security.loggedOut)
}

func (s *RouterSuite) TestAuditRoutes() {
	s.Run("search passes the filters", func() {
		w := s.do(http.MethodGet, "/audit/logs?type=authentication&severity=high&from=2026-01-01T00:00:00Z&limit=50", "tok-auditor", "")
		s.Require().Equal(http.StatusOK, w.Code)

		var resp struct {
			Count int `json:"count"`
		}
		s.decode(w, &resp)
		s.Equal(2, resp.Count)
		s.Equal(domain.EventType("authentication"), s.audit.query.EventType)
		s.Equal(domain.SeverityHigh, s.audit.query.Severity)
		s.Equal(50, s.audit.query.Limit)
		s.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), s.audit.query.From)
	})

	s.Run("bad filters", func() {
		s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/audit/logs?severity=extreme", "tok-auditor", "").Code)
		s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/audit/logs?from=yesterday", "tok-auditor", "").Code)
		s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/audit/logs?limit=-1", "tok-auditor", "").Code)
	})

	s.Run("integrity", func() {
		w := s.do(http.MethodGet, "/audit/integrity", "tok-auditor", "")
		s.Equal(http.StatusOK, w.Code)

		s.audit.result = &auditmodels.IntegrityResult{Valid: false, Checked: 3}
		w = s.do(http.MethodGet, "/audit/integrity", "tok-auditor", "")
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *RouterSuite) TestPermissionChecks() {
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/alerts", "tok-auditor", "").Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/security/metrics", "tok-auditor", "").Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/security/lockdown", "tok-auditor", `{"reason":"x"}`).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/security/metrics", "tok-admin", "").Code)
}

func (s *RouterSuite) TestAlerts() {
	s.Run("list", func() {
		w := s.do(http.MethodGet, "/alerts", "tok-admin", "")
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), "al-1")
	})

	s.Run("acknowledge records the operator", func() {
		w := s.do(http.MethodPost, "/alerts/al-1/acknowledge", "tok-admin", "")
		s.Require().Equal(http.StatusOK, w.Code)
		var alert monmodels.SecurityAlert
		s.decode(w, &alert)
		s.Equal(monmodels.AlertAcknowledged, alert.Status)
		s.Equal("a1", s.alerts.transitioned["al-1"])
	})

	s.Run("unknown alert or transition", func() {
		s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/alerts/al-9/resolve", "tok-admin", "").Code)
		s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/alerts/al-1/snooze", "tok-admin", "").Code)
	})
}

func (s *RouterSuite) TestLockdown() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/security/lockdown", "tok-admin", `{}`).Code)

	w := s.do(http.MethodPost, "/security/lockdown", "tok-admin", `{"reason":"credential leak"}`)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"sessions_revoked":7}`, w.Body.String())
	s.Equal("credential leak", s.security.lockReason)
	s.Equal("a1", s.security.lockedBy)
}

func (s *RouterSuite) TestCompliance() {
	s.Run("status before any assessment", func() {
		s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/compliance/status", "tok-auditor", "").Code)
	})

	s.Run("status", func() {
		s.compliance.latest = &compmodels.Assessment{ID: "as-1"}
		w := s.do(http.MethodGet, "/compliance/status", "tok-auditor", "")
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), "as-1")
	})

	s.Run("controls", func() {
		w := s.do(http.MethodGet, "/compliance/controls?standard=RGPD", "tok-auditor", "")
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), "RGPD-ART-32")
	})

	s.Run("auditors cannot run assessments", func() {
		s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/compliance/assessments", "tok-auditor", "").Code)
	})

	s.Run("assessment and report", func() {
		s.Equal(http.StatusCreated, s.do(http.MethodPost, "/compliance/assessments", "tok-admin", "").Code)
		s.Equal(http.StatusCreated, s.do(http.MethodPost, "/compliance/reports/RGPD", "tok-admin", "").Code)
		s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/compliance/reports/SOC2", "tok-admin", "").Code)
	})
}

func TestSessionResolver(t *testing.T) {
	s := new(resolverSuite)
	suite.Run(t, s)
}

type resolverSuite struct {
	suite.Suite
}

type parserFunc func(ctx context.Context, raw string) (*authnmodels.Session, error)

func (f parserFunc) ParseToken(ctx context.Context, raw string) (*authnmodels.Session, error) {
	return f(ctx, raw)
}

type permsFunc func(ctx context.Context, userID string) ([]string, error)

func (f permsFunc) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

func (s *resolverSuite) TestResolveToken() {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	parser := parserFunc(func(_ context.Context, raw string) (*authnmodels.Session, error) {
		if raw != "tok" {
			return nil, dErrors.New(dErrors.CodeSessionExpired, "session expired")
		}
		return &authnmodels.Session{ID: "sess-1", UserID: "u1", Roles: []string{"auditor"}, CreatedAt: created, MFAVerified: true}, nil
	})

	s.Run("builds the context with permissions", func() {
		r := NewSessionResolver(parser, permsFunc(func(context.Context, string) ([]string, error) {
			return []string{"audit:read"}, nil
		}), nil)
		secCtx, err := r.ResolveToken(context.Background(), "tok")
		s.Require().NoError(err)
		s.Equal("sess-1", secCtx.SessionID)
		s.Equal([]string{"audit:read"}, secCtx.Permissions)
		s.Equal(created, secCtx.IssuedAt)
		s.True(secCtx.MFAVerified)
	})

	s.Run("permission failure still resolves", func() {
		r := NewSessionResolver(parser, permsFunc(func(context.Context, string) ([]string, error) {
			return nil, errors.New("cache down")
		}), nil)
		secCtx, err := r.ResolveToken(context.Background(), "tok")
		s.Require().NoError(err)
		s.Empty(secCtx.Permissions)
	})

	s.Run("session errors pass through", func() {
		r := NewSessionResolver(parser, permsFunc(func(context.Context, string) ([]string, error) { return nil, nil }), nil)
		_, err := r.ResolveToken(context.Background(), "stale")
		s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))
	})
}
