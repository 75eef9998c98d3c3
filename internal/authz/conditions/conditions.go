// Package conditions narrows permission grants with per-resource predicates.
//
// A predicate only runs after the permission string itself matched, so it
// can deny but never grant beyond the caller's permissions. Resource types
// without a registered predicate are allowed.
package conditions

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"bastion/internal/authz/models"
	"bastion/pkg/domain"
	"bastion/pkg/platform/sentinel"
)

// ResourceLookup loads the documents predicates inspect.
type ResourceLookup interface {
	FindResource(ctx context.Context, resourceType, id string) (*models.Resource, error)
}

// PermissionSource resolves a user's effective permissions.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
}

// Request describes the access being checked.
type Request struct {
	UserID     string
	Action     string
	ResourceID string
	Context    *domain.SecurityContext
}

// Predicate decides whether a matched permission applies to one resource.
type Predicate interface {
	Allow(ctx context.Context, req Request) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx context.Context, req Request) (bool, error)

func (f PredicateFunc) Allow(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// Registry maps resource types to predicates.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// Register sets the predicate for resourceType, replacing any previous one.
func (r *Registry) Register(resourceType string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[resourceType] = p
}

// Types returns the resource types with a predicate.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.predicates))
	for t := range r.predicates {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Check runs the predicate for resourceType. Unknown types allow.
func (r *Registry) Check(ctx context.Context, resourceType string, req Request) (bool, error) {
	r.mu.RLock()
	p, ok := r.predicates[resourceType]
	r.mu.RUnlock()
	if !ok {
		return true, nil
	}
	return p.Allow(ctx, req)
}

// RegisterBuiltins installs the mission, workshop, report and user predicates.
func RegisterBuiltins(r *Registry, lookup ResourceLookup, perms PermissionSource) {
	missions := &missionPredicate{lookup: lookup}
	r.Register(models.ResourceMissions, missions)
	r.Register(models.ResourceWorkshops, &workshopPredicate{lookup: lookup, missions: missions})
	r.Register(models.ResourceReports, &reportPredicate{lookup: lookup, missions: missions})
	r.Register(models.ResourceUsers, &userPredicate{perms: perms})
}

// find returns nil without error when the document does not exist.
func find(ctx context.Context, lookup ResourceLookup, resourceType, id string) (*models.Resource, error) {
	res, err := lookup.FindResource(ctx, resourceType, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return res, err
}

type missionPredicate struct {
	lookup ResourceLookup
}

func (p *missionPredicate) Allow(ctx context.Context, req Request) (bool, error) {
	if req.ResourceID == "" {
		return true, nil
	}
	mission, err := find(ctx, p.lookup, models.ResourceMissions, req.ResourceID)
	if err != nil || mission == nil {
		return false, err
	}
	return missionAllows(mission, req.UserID, req.Action), nil
}

func missionAllows(m *models.Resource, userID, action string) bool {
	if strings.Contains(action, "assigned") {
		return slices.Contains(m.AssignedTo, userID)
	}
	if m.CreatedBy == userID {
		return true
	}
	if slices.Contains(m.TeamMembers, userID) {
		return action == "read" || action == "update"
	}
	return action == "read" && m.Visibility == models.VisibilityPublic
}

type workshopPredicate struct {
	lookup   ResourceLookup
	missions *missionPredicate
}

func (p *workshopPredicate) Allow(ctx context.Context, req Request) (bool, error) {
	if req.ResourceID == "" {
		return true, nil
	}
	workshop, err := find(ctx, p.lookup, models.ResourceWorkshops, req.ResourceID)
	if err != nil || workshop == nil || workshop.MissionID == "" {
		return false, err
	}
	req.ResourceID = workshop.MissionID
	return p.missions.Allow(ctx, req)
}

type reportPredicate struct {
	lookup   ResourceLookup
	missions *missionPredicate
}

func (p *reportPredicate) Allow(ctx context.Context, req Request) (bool, error) {
	if req.ResourceID == "" {
		return true, nil
	}
	report, err := find(ctx, p.lookup, models.ResourceReports, req.ResourceID)
	if err != nil || report == nil {
		return false, err
	}
	if report.CreatedBy == req.UserID {
		return true, nil
	}
	if report.MissionID != "" {
		return p.missions.Allow(ctx, Request{
			UserID:     req.UserID,
			Action:     "read",
			ResourceID: report.MissionID,
			Context:    req.Context,
		})
	}
	return req.Action == "read" && report.Visibility == models.VisibilityPublic, nil
}

// userPredicate lets users reach their own record; other records need an
// administrative grant.
type userPredicate struct {
	perms PermissionSource
}

func (p *userPredicate) Allow(ctx context.Context, req Request) (bool, error) {
	if req.ResourceID != "" && req.ResourceID == req.UserID {
		return true, nil
	}
	perms, err := p.perms.GetUserPermissions(ctx, req.UserID)
	if err != nil {
		return false, err
	}
	return slices.Contains(perms, "users:*") || slices.Contains(perms, "*"), nil
}
