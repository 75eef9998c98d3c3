package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	auditmodels "bastion/internal/audit/models"
	authnmodels "bastion/internal/authn/models"
	monmodels "bastion/internal/monitoring/models"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/httputil"
	"bastion/pkg/platform/middleware/auth"
	"bastion/pkg/platform/middleware/metadata"
)

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string, len(h.deps.Readiness))
	status := http.StatusOK
	for name, check := range h.deps.Readiness {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, checks)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	MFAVerified bool      `json:"mfa_verified"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "email and password are required"))
		return
	}
	login, err := h.deps.Security.Authenticate(ctx, authnmodels.Credentials{
		Email:     req.Email,
		Password:  req.Password,
		MFACode:   req.MFACode,
		IPAddress: metadata.GetClientIP(ctx),
		UserAgent: metadata.GetUserAgent(ctx),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token:       login.Token,
		ExpiresAt:   login.ExpiresAt,
		UserID:      login.UserID,
		SessionID:   login.SessionID,
		Roles:       login.Roles,
		Permissions: login.Permissions,
		MFAVerified: login.MFAVerified,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	secCtx, _ := auth.FromContext(ctx)
	if err := h.deps.Security.Logout(ctx, secCtx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearchAudit(w http.ResponseWriter, r *http.Request) {
	q, err := parseAuditQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	logs, err := h.deps.Audit.SearchLogs(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func parseAuditQuery(r *http.Request) (auditmodels.Query, error) {
	v := r.URL.Query()
	q := auditmodels.Query{
		EventType: domain.EventType(v.Get("type")),
		UserID:    v.Get("user_id"),
		Severity:  domain.Severity(v.Get("severity")),
		Result:    domain.Result(v.Get("result")),
	}
	if q.EventType != "" && !q.EventType.IsValid() {
		return q, dErrors.Newf(dErrors.CodeValidation, "unknown event type %q", q.EventType)
	}
	if q.Severity != "" && !q.Severity.IsValid() {
		return q, dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", q.Severity)
	}
	for key, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := v.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, dErrors.Newf(dErrors.CodeValidation, "%s must be RFC 3339", key)
		}
		*dst = t
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q.Normalize(), nil
}

func (h *Handler) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Audit.VerifyIntegrity(r.Context(), r.URL.Query().Get("log_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) handleSecurityMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Security.GetSecurityMetrics(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

type lockdownRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleLockdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req lockdownRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Reason == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "reason is required"))
		return
	}
	secCtx, _ := auth.FromContext(ctx)
	h.logger.WarnContext(ctx, "emergency lockdown requested",
		"user_id", secCtx.UserID,
		"request_id", chimw.GetReqID(ctx),
	)
	n, err := h.deps.Security.EmergencyLockdown(ctx, req.Reason, secCtx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"sessions_revoked": n})
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.deps.Alerts.OpenAlerts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleAlertTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	secCtx, _ := auth.FromContext(ctx)
	id := chi.URLParam(r, "id")

	var (
		alert *monmodels.SecurityAlert
		err   error
	)
	switch chi.URLParam(r, "transition") {
	case "acknowledge":
		alert, err = h.deps.Alerts.Acknowledge(ctx, id, secCtx.UserID)
	case "resolve":
		alert, err = h.deps.Alerts.Resolve(ctx, id, secCtx.UserID)
	case "false-positive":
		alert, err = h.deps.Alerts.MarkFalsePositive(ctx, id, secCtx.UserID)
	default:
		err = dErrors.New(dErrors.CodeNotFound, "unknown alert transition")
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleComplianceStatus(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Compliance.LatestAssessment(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleControls(w http.ResponseWriter, r *http.Request) {
	controls := h.deps.Compliance.Controls(r.URL.Query().Get("standard"))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"controls": controls, "count": len(controls)})
}

func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Security.ValidateCompliance(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Compliance.GenerateComplianceReport(r.Context(), chi.URLParam(r, "standard"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, report)
}
