// Package http is the operator surface of the security layer: login, audit
// search and integrity checks, alert handling, compliance status and
// emergency controls.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	auditmodels "bastion/internal/audit/models"
	authnmodels "bastion/internal/authn/models"
	compmodels "bastion/internal/compliance/models"
	monmodels "bastion/internal/monitoring/models"
	"bastion/internal/security"
	"bastion/pkg/domain"
	"bastion/pkg/platform/middleware/auth"
	"bastion/pkg/platform/middleware/metadata"
)

// Security is the façade subset the routes drive.
type Security interface {
	Authenticate(ctx context.Context, creds authnmodels.Credentials) (*security.Login, error)
	Logout(ctx context.Context, secCtx domain.SecurityContext) error
	Authorize(ctx context.Context, secCtx domain.SecurityContext, resource, action, resourceID string) bool
	GetSecurityMetrics(ctx context.Context) (*monmodels.SecurityMetrics, error)
	EmergencyLockdown(ctx context.Context, reason string, secCtx domain.SecurityContext) (int, error)
	ValidateCompliance(ctx context.Context) (*compmodels.Assessment, error)
}

// AuditReader reads the audit chain.
type AuditReader interface {
	SearchLogs(ctx context.Context, q auditmodels.Query) ([]*auditmodels.AuditLog, error)
	VerifyIntegrity(ctx context.Context, logID string) (*auditmodels.IntegrityResult, error)
}

// AlertDesk lists and transitions monitoring alerts.
type AlertDesk interface {
	OpenAlerts(ctx context.Context) ([]*monmodels.SecurityAlert, error)
	Acknowledge(ctx context.Context, alertID, by string) (*monmodels.SecurityAlert, error)
	Resolve(ctx context.Context, alertID, by string) (*monmodels.SecurityAlert, error)
	MarkFalsePositive(ctx context.Context, alertID, by string) (*monmodels.SecurityAlert, error)
}

// ComplianceReader exposes assessments, controls and reports.
type ComplianceReader interface {
	LatestAssessment(ctx context.Context) (*compmodels.Assessment, error)
	Controls(standard string) []*compmodels.Control
	GenerateComplianceReport(ctx context.Context, standard string) (*compmodels.Report, error)
}

// ReadinessCheck reports whether a backing dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Deps are the collaborators of the router.
type Deps struct {
	Security   Security
	Sessions   auth.TokenResolver
	Audit      AuditReader
	Alerts     AlertDesk
	Compliance ComplianceReader
	Metrics    http.Handler
	Readiness  map[string]ReadinessCheck
}

// Handler serves the operator routes.
type Handler struct {
	deps    Deps
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

func New(deps Deps, opts ...Option) (*Handler, error) {
	switch {
	case deps.Security == nil:
		return nil, errors.New("security service is required")
	case deps.Sessions == nil:
		return nil, errors.New("session resolver is required")
	case deps.Audit == nil:
		return nil, errors.New("audit reader is required")
	case deps.Alerts == nil:
		return nil, errors.New("alert desk is required")
	case deps.Compliance == nil:
		return nil, errors.New("compliance reader is required")
	}
	h := &Handler{
		deps:    deps,
		logger:  slog.New(slog.DiscardHandler),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Router builds the chi router with every route registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	if h.timeout > 0 {
		r.Use(chimw.Timeout(h.timeout))
	}

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics)
	}
	r.Post("/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.deps.Sessions, h.logger))
		r.Post("/auth/logout", h.handleLogout)

		r.With(h.require("audit", "read")).Get("/audit/logs", h.handleSearchAudit)
		r.With(h.require("audit", "read")).Get("/audit/integrity", h.handleVerifyIntegrity)

		r.With(h.require("security", "read")).Get("/security/metrics", h.handleSecurityMetrics)
		r.With(h.require("security", "lockdown")).Post("/security/lockdown", h.handleLockdown)

		r.With(h.require("alerts", "read")).Get("/alerts", h.handleListAlerts)
		r.With(h.require("alerts", "update")).Post("/alerts/{id}/{transition}", h.handleAlertTransition)

		r.With(h.require("reports", "read")).Get("/compliance/status", h.handleComplianceStatus)
		r.With(h.require("reports", "read")).Get("/compliance/controls", h.handleControls)
		r.With(h.require("reports", "create")).Post("/compliance/assessments", h.handleAssess)
		r.With(h.require("reports", "create")).Post("/compliance/reports/{standard}", h.handleReport)
	})
}

func (h *Handler) require(resource, action string) func(http.Handler) http.Handler {
	return auth.RequirePermission(h.deps.Security, resource, action, h.logger)
}
