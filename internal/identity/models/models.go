// Package models holds the principals shared by authentication and
// authorization: users, groups and MFA enrolments.
package models

import (
	"slices"
	"strings"
	"time"
)

type User struct {
	ID                   string
	Email                string
	PasswordHash         string
	Role                 string
	CustomPermissions    []string
	Groups               []string
	Active               bool
	LastLoginAt          time.Time
	LastLoginIP          string
	RoleAssignedBy       string
	RoleAssignedAt       time.Time
	PermissionsUpdatedBy string
	PermissionsUpdatedAt time.Time
}

// Clone returns a deep copy so that stores never share slices with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.CustomPermissions = slices.Clone(u.CustomPermissions)
	cp.Groups = slices.Clone(u.Groups)
	return &cp
}

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Group struct {
	ID          string
	Name        string
	Permissions []string
}

func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Permissions = slices.Clone(g.Permissions)
	return &cp
}

// MFASetup is a user's TOTP enrolment. BackupCodes holds bcrypt hashes;
// a used code is removed.
type MFASetup struct {
	UserID      string
	Secret      string
	BackupCodes []string
	Verified    bool
	CreatedAt   time.Time
	VerifiedAt  time.Time
}

func (m *MFASetup) Clone() *MFASetup {
	if m == nil {
		return nil
	}
	cp := *m
	cp.BackupCodes = slices.Clone(m.BackupCodes)
	return &cp
}
