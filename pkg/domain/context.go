package domain

import (
	"slices"
	"time"
)

// SecurityContext describes an authenticated principal for the lifetime of one
// request. It is built once at authentication and never persisted verbatim;
// permissions are recomputed from the authorization cache on each login.
type SecurityContext struct {
	UserID      string
	SessionID   string
	Roles       []string
	Permissions []string
	IPAddress   string
	UserAgent   string
	IssuedAt    time.Time
	MFAVerified bool
}

// HasRole reports whether the context carries role.
func (c SecurityContext) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IsZero reports whether the context identifies nobody.
func (c SecurityContext) IsZero() bool {
	return c.UserID == ""
}
