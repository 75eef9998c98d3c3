package http

import (
	"context"
	"log/slog"

	authnmodels "bastion/internal/authn/models"
	"bastion/pkg/domain"
)

// SessionParser validates a bearer token against the session store.
type SessionParser interface {
	ParseToken(ctx context.Context, raw string) (*authnmodels.Session, error)
}

// PermissionSource lists the effective permissions of a user.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
}

// SessionResolver builds the caller's security context from a session token.
type SessionResolver struct {
	sessions    SessionParser
	permissions PermissionSource
	logger      *slog.Logger
}

func NewSessionResolver(sessions SessionParser, permissions PermissionSource, logger *slog.Logger) *SessionResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionResolver{sessions: sessions, permissions: permissions, logger: logger}
}

// ResolveToken fails with the session error codes of authn. A permission
// lookup failure leaves Permissions empty; route checks still go through
// authz.
func (r *SessionResolver) ResolveToken(ctx context.Context, token string) (domain.SecurityContext, error) {
	sess, err := r.sessions.ParseToken(ctx, token)
	if err != nil {
		return domain.SecurityContext{}, err
	}
	perms, err := r.permissions.GetUserPermissions(ctx, sess.UserID)
	if err != nil {
		r.logger.WarnContext(ctx, "permissions unavailable for session", "user_id", sess.UserID, "error", err)
	}
	return domain.SecurityContext{
		UserID:      sess.UserID,
		SessionID:   sess.ID,
		Roles:       sess.Roles,
		Permissions: perms,
		IPAddress:   sess.IPAddress,
		UserAgent:   sess.UserAgent,
		IssuedAt:    sess.CreatedAt,
		MFAVerified: sess.MFAVerified,
	}, nil
}
