package security

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	authnmodels "bastion/internal/authn/models"
	compmodels "bastion/internal/compliance/models"
	monmodels "bastion/internal/monitoring/models"
	"bastion/internal/platform/config"
	"bastion/internal/platform/tracing"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
)

// Login is the outcome of a successful authentication: the security context
// of the new session and the bearer token that identifies it.
type Login struct {
	domain.SecurityContext
	Token     string
	ExpiresAt time.Time
}

// Authenticate logs a user in and returns the security context of the new
// session, permissions included.
func (s *Service) Authenticate(ctx context.Context, creds authnmodels.Credentials) (*Login, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.Authenticate")
	start := s.clock.Now()
	defer func() {
		s.monitoring.RecordMetric("auth_duration", float64(s.clock.Since(start).Milliseconds()), nil)
	}()

	res, err := s.authn.Authenticate(ctx, creds)
	if err != nil {
		s.LogSecurityEvent(ctx, loginFailure(creds, err))
		end(err)
		return nil, err
	}

	perms, err := s.authz.GetUserPermissions(ctx, res.UserID)
	if err != nil {
		s.logger.WarnContext(ctx, "permissions unavailable at login", "user_id", res.UserID, "error", err)
	}
	secCtx := domain.SecurityContext{
		UserID:      res.UserID,
		SessionID:   res.SessionID,
		Roles:       res.Roles,
		Permissions: perms,
		IPAddress:   creds.IPAddress,
		UserAgent:   creds.UserAgent,
		IssuedAt:    s.clock.Now(),
		MFAVerified: res.MFAVerified,
	}
	s.LogSecurityEvent(ctx, domain.SecurityEvent{
		Type:      domain.EventAuthentication,
		Action:    "login",
		UserID:    secCtx.UserID,
		SessionID: secCtx.SessionID,
		Result:    domain.ResultSuccess,
		Severity:  domain.SeverityLow,
		IPAddress: creds.IPAddress,
		UserAgent: creds.UserAgent,
	})
	end(nil)
	return &Login{SecurityContext: secCtx, Token: res.Token, ExpiresAt: res.ExpiresAt}, nil
}

func loginFailure(creds authnmodels.Credentials, err error) domain.SecurityEvent {
	ev := domain.SecurityEvent{
		Type:      domain.EventAuthentication,
		Action:    "login",
		Result:    domain.ResultFailure,
		Severity:  domain.SeverityMedium,
		IPAddress: creds.IPAddress,
		UserAgent: creds.UserAgent,
		Details:   domain.Details{"reason": string(dErrors.CodeOf(err))},
	}
	switch {
	case dErrors.HasCode(err, dErrors.CodeMFARequired):
		ev.Action = "mfa_challenge"
		ev.Severity = domain.SeverityLow
	case dErrors.HasCode(err, dErrors.CodeAccountLocked):
		ev.Action = "account_locked"
		ev.Result = domain.ResultBlocked
		ev.Severity = domain.SeverityHigh
	}
	return ev
}

func (s *Service) ValidateSession(ctx context.Context, sessionID string) (*authnmodels.Session, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.ValidateSession")
	sess, err := s.authn.ValidateSession(ctx, sessionID)
	end(err)
	return sess, err
}

func (s *Service) Logout(ctx context.Context, secCtx domain.SecurityContext) error {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.Logout", attribute.String("user.id", secCtx.UserID))
	err := s.authn.Logout(ctx, secCtx.SessionID)
	if err == nil {
		s.LogSecurityEvent(ctx, domain.SecurityEvent{
			Type:      domain.EventAuthentication,
			Action:    "logout",
			UserID:    secCtx.UserID,
			SessionID: secCtx.SessionID,
			Result:    domain.ResultSuccess,
			Severity:  domain.SeverityLow,
			IPAddress: secCtx.IPAddress,
		})
	}
	end(err)
	return err
}

// Authorize checks resource:action for the principal. Denials are audited
// as blocked.
func (s *Service) Authorize(ctx context.Context, secCtx domain.SecurityContext, resource, action, resourceID string) bool {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.Authorize",
		attribute.String("user.id", secCtx.UserID),
		attribute.String("permission", resource+":"+action))
	defer end(nil)

	allowed := s.authz.HasPermission(ctx, secCtx.UserID, resource+":"+action, &secCtx, resourceID)
	ev := domain.SecurityEvent{
		Type:      domain.EventAuthorization,
		Action:    action + "_" + resource,
		UserID:    secCtx.UserID,
		SessionID: secCtx.SessionID,
		Resource:  resource,
		Result:    domain.ResultSuccess,
		Severity:  domain.SeverityLow,
		IPAddress: secCtx.IPAddress,
	}
	if !allowed {
		ev.Result = domain.ResultBlocked
		ev.Severity = domain.SeverityMedium
	}
	if resourceID != "" {
		ev.Details = domain.Details{"resource_id": resourceID}
	}
	s.LogSecurityEvent(ctx, ev)
	return allowed
}

// EncryptSensitiveData seals v under the principal's key context.
func (s *Service) EncryptSensitiveData(ctx context.Context, v any, secCtx domain.SecurityContext) (string, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.EncryptSensitiveData", attribute.String("user.id", secCtx.UserID))
	envelope, err := s.encryption.EncryptValue(ctx, v, secCtx.UserID)
	s.logDataOperation(ctx, secCtx, "encrypt", err)
	end(err)
	return envelope, err
}

// DecryptSensitiveData opens envelope into out.
func (s *Service) DecryptSensitiveData(ctx context.Context, envelope string, secCtx domain.SecurityContext, out any) error {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.DecryptSensitiveData", attribute.String("user.id", secCtx.UserID))
	err := s.encryption.DecryptValue(ctx, envelope, secCtx.UserID, out)
	s.logDataOperation(ctx, secCtx, "decrypt", err)
	end(err)
	return err
}

// EncryptSensitiveFields seals the configured sensitive fields of record.
func (s *Service) EncryptSensitiveFields(ctx context.Context, record map[string]any, secCtx domain.SecurityContext) (map[string]any, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.EncryptSensitiveFields", attribute.String("user.id", secCtx.UserID))
	out, err := s.encryption.EncryptSensitiveFields(ctx, record, secCtx.UserID)
	s.logDataOperation(ctx, secCtx, "encrypt", err)
	end(err)
	return out, err
}

func (s *Service) logDataOperation(ctx context.Context, secCtx domain.SecurityContext, op string, err error) {
	ev := domain.SecurityEvent{
		Type:      domain.EventDataAccess,
		Action:    op,
		UserID:    secCtx.UserID,
		SessionID: secCtx.SessionID,
		Result:    domain.ResultSuccess,
		Severity:  domain.SeverityLow,
		IPAddress: secCtx.IPAddress,
	}
	if err != nil {
		ev.Type = domain.EventSecurity
		ev.Action = op + "ion_failure"
		ev.Result = domain.ResultFailure
		ev.Severity = domain.SeverityHigh
		ev.Details = domain.Details{"reason": string(dErrors.CodeOf(err))}
	}
	s.LogSecurityEvent(ctx, ev)
}

// LogSecurityEvent records ev in the audit chain, feeds it to monitoring and
// raises an alert when it is high or critical. Failures are logged, never
// returned.
func (s *Service) LogSecurityEvent(ctx context.Context, ev domain.SecurityEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock.Now()
	}
	if out := s.audit.LogEvent(ctx, ev); out.Err != nil {
		s.logger.ErrorContext(ctx, "security event not audited",
			"type", ev.Type, "action", ev.Action, "error", out.Err)
	}
	s.monitoring.ProcessSecurityEvent(ctx, ev)
	if ev.IsHighSeverity() {
		if _, err := s.monitoring.TriggerAlert(ctx, monmodels.AlertFromEvent(ev)); err != nil {
			s.logger.ErrorContext(ctx, "failed to raise alert for security event",
				"type", ev.Type, "action", ev.Action, "error", err)
		}
	}
}

// DetectAnomalies runs the behavioural checks for secCtx and records every
// anomaly found as a security event.
func (s *Service) DetectAnomalies(ctx context.Context, secCtx domain.SecurityContext) []monmodels.Anomaly {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.DetectAnomalies", attribute.String("user.id", secCtx.UserID))
	defer end(nil)

	anomalies := s.monitoring.DetectAnomalies(ctx, secCtx)
	for _, a := range anomalies {
		details := a.Details.With("anomaly_type", a.Type).
			With("confidence", strconv.FormatFloat(a.Confidence, 'f', 2, 64))
		s.LogSecurityEvent(ctx, domain.SecurityEvent{
			Type:      domain.EventSecurity,
			Action:    "anomaly_detected",
			UserID:    secCtx.UserID,
			SessionID: secCtx.SessionID,
			Result:    domain.ResultBlocked,
			Severity:  a.Severity,
			IPAddress: secCtx.IPAddress,
			Details:   details,
		})
	}
	return anomalies
}

func (s *Service) ValidateCompliance(ctx context.Context) (*compmodels.Assessment, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.ValidateCompliance")
	a, err := s.compliance.ValidateCompliance(ctx)
	end(err)
	return a, err
}

// GetSecurityConfig returns the configuration with every secret masked.
func (s *Service) GetSecurityConfig() *config.Config {
	if s.cfg == nil {
		return nil
	}
	return s.cfg.Redacted()
}

// HandleSecurityIncident records the incident, runs the incident response
// and locks the system down.
func (s *Service) HandleSecurityIncident(ctx context.Context, incidentType string, details domain.Details, secCtx domain.SecurityContext) (*monmodels.Incident, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.HandleSecurityIncident",
		attribute.String("incident.type", incidentType))

	s.LogSecurityEvent(ctx, domain.SecurityEvent{
		Type:      domain.EventSecurity,
		Action:    "incident_detected",
		UserID:    secCtx.UserID,
		SessionID: secCtx.SessionID,
		Result:    domain.ResultBlocked,
		Severity:  domain.SeverityCritical,
		IPAddress: secCtx.IPAddress,
		Details:   details.With("incident_type", incidentType),
	})
	inc, respErr := s.monitoring.TriggerIncidentResponse(ctx, incidentType, details)
	_, lockErr := s.lockdown(ctx)
	err := errors.Join(respErr, lockErr)
	end(err)
	return inc, err
}

// EmergencyLockdown revokes every session and broadcasts an emergency alert.
// It returns the number of sessions revoked.
func (s *Service) EmergencyLockdown(ctx context.Context, reason string, secCtx domain.SecurityContext) (int, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.EmergencyLockdown")

	s.LogSecurityEvent(ctx, domain.SecurityEvent{
		Type:      domain.EventSecurity,
		Action:    "emergency_lockdown",
		UserID:    secCtx.UserID,
		SessionID: secCtx.SessionID,
		Result:    domain.ResultSuccess,
		Severity:  domain.SeverityCritical,
		IPAddress: secCtx.IPAddress,
		Details:   domain.Details{"reason": reason},
	})
	n, lockErr := s.lockdown(ctx)
	_, alertErr := s.monitoring.TriggerEmergencyAlert(ctx, reason)
	err := errors.Join(lockErr, alertErr)
	end(err)
	return n, err
}

func (s *Service) lockdown(ctx context.Context) (int, error) {
	n, err := s.authn.LockdownSystem(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "system lockdown failed", "error", err)
		return n, err
	}
	s.logger.WarnContext(ctx, "system locked down", "sessions_revoked", n)
	return n, nil
}

// RotateKeys rotates every data key past its rotation age.
func (s *Service) RotateKeys(ctx context.Context) (int, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.RotateKeys")
	n, err := s.encryption.RotateKeys(ctx)
	ev := domain.SecurityEvent{
		Type:     domain.EventSystem,
		Action:   "key_rotation",
		Result:   domain.ResultSuccess,
		Severity: domain.SeverityMedium,
		Details:  domain.Details{"rotated": strconv.Itoa(n)},
	}
	if err != nil {
		ev.Result = domain.ResultFailure
		ev.Severity = domain.SeverityHigh
		ev.Details = ev.Details.With("reason", string(dErrors.CodeOf(err)))
	}
	s.LogSecurityEvent(ctx, ev)
	end(err)
	return n, err
}

func (s *Service) CleanupExpiredSessions(ctx context.Context) (int, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.CleanupExpiredSessions")
	n, err := s.authn.CleanupExpiredSessions(ctx)
	ev := domain.SecurityEvent{
		Type:     domain.EventSystem,
		Action:   "session_cleanup",
		Result:   domain.ResultSuccess,
		Severity: domain.SeverityLow,
		Details:  domain.Details{"cleaned_sessions": strconv.Itoa(n)},
	}
	if err != nil {
		ev.Result = domain.ResultFailure
		ev.Severity = domain.SeverityMedium
	}
	s.LogSecurityEvent(ctx, ev)
	end(err)
	return n, err
}

func (s *Service) GetSecurityMetrics(ctx context.Context) (*monmodels.SecurityMetrics, error) {
	ctx, end := tracing.StartSpan(ctx, s.tracer, "security.GetSecurityMetrics")
	m, err := s.monitoring.GetSecurityMetrics(ctx)
	end(err)
	return m, err
}
