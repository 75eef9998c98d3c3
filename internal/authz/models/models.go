// Package models holds the resource documents that authorization
// conditions inspect.
package models

import "slices"

// Resource types with built-in conditions.
const (
	ResourceMissions  = "missions"
	ResourceWorkshops = "workshops"
	ResourceReports   = "reports"
	ResourceUsers     = "users"
)

// VisibilityPublic makes a mission or report readable by any holder of the
// read permission.
const VisibilityPublic = "public"

// Resource is the subset of an application document that access conditions
// need. Workshops and reports point at their mission through MissionID.
type Resource struct {
	ID          string
	Type        string
	CreatedBy   string
	AssignedTo  []string
	TeamMembers []string
	Visibility  string
	MissionID   string
}

func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	cp := *r
	cp.AssignedTo = slices.Clone(r.AssignedTo)
	cp.TeamMembers = slices.Clone(r.TeamMembers)
	return &cp
}

// Stats is a snapshot of the authorization service.
type Stats struct {
	CachedUsers int                 `json:"cachedUsers"`
	Roles       []string            `json:"roles"`
	Permissions []string            `json:"permissions"`
	RoleGrants  map[string][]string `json:"roleGrants"`
}
