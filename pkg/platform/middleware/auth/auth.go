// Package auth guards HTTP routes with bearer session tokens and permission
// checks.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/httputil"
)

// TokenResolver turns a bearer token into the caller's security context.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (domain.SecurityContext, error)
}

// Authorizer decides resource:action for an authenticated caller.
type Authorizer interface {
	Authorize(ctx context.Context, secCtx domain.SecurityContext, resource, action, resourceID string) bool
}

type contextKeySecurity struct{}

// FromContext returns the security context stored by RequireAuth.
func FromContext(ctx context.Context) (domain.SecurityContext, bool) {
	secCtx, ok := ctx.Value(contextKeySecurity{}).(domain.SecurityContext)
	return secCtx, ok
}

// WithSecurityContext stores secCtx in ctx.
func WithSecurityContext(ctx context.Context, secCtx domain.SecurityContext) context.Context {
	return context.WithValue(ctx, contextKeySecurity{}, secCtx)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// RequireAuth rejects requests without a valid session token.
func RequireAuth(resolver TokenResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := BearerToken(r)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeSessionInvalid, "bearer token required"))
				return
			}
			secCtx, err := resolver.ResolveToken(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", chimw.GetReqID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSecurityContext(ctx, secCtx)))
		})
	}
}

// RequirePermission rejects authenticated callers lacking resource:action.
// It must run after RequireAuth.
func RequirePermission(authz Authorizer, resource, action string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			secCtx, ok := FromContext(ctx)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeSessionInvalid, "authentication required"))
				return
			}
			if !authz.Authorize(ctx, secCtx, resource, action, "") {
				logger.WarnContext(ctx, "forbidden",
					"user_id", secCtx.UserID,
					"permission", resource+":"+action,
					"request_id", chimw.GetReqID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodePermissionDenied, "insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
