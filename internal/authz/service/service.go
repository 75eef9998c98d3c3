// Package service resolves role-based permissions and checks them against
// per-resource conditions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"bastion/internal/authz/conditions"
	"bastion/internal/authz/metrics"
	"bastion/internal/authz/models"
	idmodels "bastion/internal/identity/models"
	"bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/sentinel"
	pstrings "bastion/pkg/platform/strings"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	wildcard        = "*"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (*idmodels.User, error)
	Update(ctx context.Context, user *idmodels.User) error
}

type GroupStore interface {
	FindByID(ctx context.Context, id string) (*idmodels.Group, error)
}

type cacheEntry struct {
	permissions []string
	expiresAt   time.Time
}

type Service struct {
	users      UserStore
	groups     GroupStore
	roles      map[string][]string
	conditions *conditions.Registry
	lookup     conditions.ResourceLookup
	custom     map[string]conditions.Predicate
	cacheTTL   time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	cache map[string]cacheEntry
	// versions is bumped by every invalidation so that a load racing with a
	// mutation never caches the pre-mutation permissions.
	versions map[string]uint64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithResourceLookup enables the built-in mission, workshop, report and
// user conditions.
func WithResourceLookup(lookup conditions.ResourceLookup) Option {
	return func(s *Service) {
		s.lookup = lookup
	}
}

// WithPredicate registers a condition for resourceType, overriding a built-in.
func WithPredicate(resourceType string, p conditions.Predicate) Option {
	return func(s *Service) {
		s.custom[resourceType] = p
	}
}

// New builds the service. roles maps a role name to its permissions.
func New(users UserStore, groups GroupStore, roles map[string][]string, opts ...Option) (*Service, error) {
	if users == nil || groups == nil {
		return nil, errors.New("user and group stores are required")
	}
	if len(roles) == 0 {
		return nil, errors.New("at least one role is required")
	}
	s := &Service{
		users:      users,
		groups:     groups,
		roles:      make(map[string][]string, len(roles)),
		conditions: conditions.NewRegistry(),
		custom:     make(map[string]conditions.Predicate),
		cacheTTL:   DefaultCacheTTL,
		clock:      clock.New(),
		logger:     slog.New(slog.DiscardHandler),
		cache:      make(map[string]cacheEntry),
		versions:   make(map[string]uint64),
	}
	for role, perms := range roles {
		s.roles[role] = slices.Clone(perms)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.lookup != nil {
		conditions.RegisterBuiltins(s.conditions, s.lookup, s)
	}
	for resourceType, p := range s.custom {
		s.conditions.Register(resourceType, p)
	}
	return s, nil
}

// HasPermission reports whether userID may perform permission
// ("resource:action") on resourceID. Grants match in order: exact,
// "resource:*", "*:action", "*"; a match is then narrowed by the resource
// condition. Every error denies.
func (s *Service) HasPermission(ctx context.Context, userID, permission string, secCtx *domain.SecurityContext, resourceID string) bool {
	resource, action, ok := splitPermission(permission)
	if !ok || userID == "" {
		s.metrics.IncDecision(metrics.DecisionDenied)
		return false
	}

	perms, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		s.metrics.IncDecision(metrics.DecisionError)
		s.logger.ErrorContext(ctx, "permission lookup failed", "user_id", userID, "permission", permission, "error", err)
		return false
	}
	if !matches(perms, permission, resource, action) {
		s.metrics.IncDecision(metrics.DecisionDenied)
		s.logger.WarnContext(ctx, "permission denied", "user_id", userID, "permission", permission, "resource_id", resourceID)
		return false
	}

	allowed, err := s.conditions.Check(ctx, resource, conditions.Request{
		UserID:     userID,
		Action:     action,
		ResourceID: resourceID,
		Context:    secCtx,
	})
	if err != nil {
		s.metrics.IncDecision(metrics.DecisionError)
		s.logger.ErrorContext(ctx, "resource condition failed", "user_id", userID, "permission", permission, "resource_id", resourceID, "error", err)
		return false
	}
	if !allowed {
		s.metrics.IncDecision(metrics.DecisionDenied)
		s.logger.WarnContext(ctx, "resource condition denied access", "user_id", userID, "permission", permission, "resource_id", resourceID)
		return false
	}
	s.metrics.IncDecision(metrics.DecisionGranted)
	return true
}

func splitPermission(permission string) (resource, action string, ok bool) {
	if permission == wildcard {
		return wildcard, wildcard, true
	}
	resource, action, found := strings.Cut(permission, ":")
	if !found || resource == "" || action == "" {
		return "", "", false
	}
	return resource, action, true
}

func matches(perms []string, permission, resource, action string) bool {
	for _, candidate := range []string{permission, resource + ":*", "*:" + action, wildcard} {
		if slices.Contains(perms, candidate) {
			return true
		}
	}
	return false
}

// GetUserPermissions returns the union of the user's role, custom and group
// permissions. Results are cached for the cache TTL and dropped by every
// mutation.
func (s *Service) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	now := s.clock.Now()
	s.mu.Lock()
	if e, ok := s.cache[userID]; ok && now.Before(e.expiresAt) {
		s.mu.Unlock()
		s.metrics.IncCacheHit()
		return slices.Clone(e.permissions), nil
	}
	version := s.versions[userID]
	s.mu.Unlock()
	s.metrics.IncCacheMiss()

	perms, err := s.loadPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.versions[userID] == version {
		s.cache[userID] = cacheEntry{permissions: perms, expiresAt: now.Add(s.cacheTTL)}
	}
	size := len(s.cache)
	s.mu.Unlock()
	s.metrics.SetCachedUsers(size)
	return slices.Clone(perms), nil
}

func (s *Service) loadPermissions(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to load user")
	}
	rolePerms, ok := s.roles[user.Role]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown role %q", user.Role)
	}

	lists := [][]string{rolePerms, user.CustomPermissions}
	for _, groupID := range user.Groups {
		group, err := s.groups.FindByID(ctx, groupID)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "user references missing group", "user_id", userID, "group_id", groupID)
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to load group")
		}
		lists = append(lists, group.Permissions)
	}
	perms := pstrings.Union(lists...)
	if perms == nil {
		perms = []string{}
	}
	return perms, nil
}

// Invalidate drops the cached permissions of userID.
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.versions[userID]++
	size := len(s.cache)
	s.mu.Unlock()
	s.metrics.IncInvalidations()
	s.metrics.SetCachedUsers(size)
}

// SweepExpired removes expired cache entries and returns how many went.
func (s *Service) SweepExpired() int {
	now := s.clock.Now()
	s.mu.Lock()
	removed := 0
	for userID, e := range s.cache {
		if !now.Before(e.expiresAt) {
			delete(s.cache, userID)
			removed++
		}
	}
	size := len(s.cache)
	s.mu.Unlock()
	s.metrics.SetCachedUsers(size)
	return removed
}

// AssignRole replaces the user's role.
func (s *Service) AssignRole(ctx context.Context, userID, role, assignedBy string) error {
	if _, ok := s.roles[role]; !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown role %q", role)
	}
	err := s.mutate(ctx, userID, func(u *idmodels.User, now time.Time) bool {
		u.Role = role
		u.RoleAssignedBy = assignedBy
		u.RoleAssignedAt = now
		return true
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "role assigned", "user_id", userID, "role", role, "assigned_by", assignedBy)
	return nil
}

// GrantCustomPermission adds permission to the user's custom grants. Granting
// a permission already held is a no-op.
func (s *Service) GrantCustomPermission(ctx context.Context, userID, permission, grantedBy string) error {
	if _, _, ok := splitPermission(permission); !ok {
		return dErrors.Newf(dErrors.CodeValidation, "invalid permission %q", permission)
	}
	err := s.mutate(ctx, userID, func(u *idmodels.User, now time.Time) bool {
		if slices.Contains(u.CustomPermissions, permission) {
			return false
		}
		u.CustomPermissions = append(u.CustomPermissions, permission)
		u.PermissionsUpdatedBy = grantedBy
		u.PermissionsUpdatedAt = now
		return true
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "custom permission granted", "user_id", userID, "permission", permission, "granted_by", grantedBy)
	return nil
}

// RevokeCustomPermission removes permission from the user's custom grants.
func (s *Service) RevokeCustomPermission(ctx context.Context, userID, permission, revokedBy string) error {
	err := s.mutate(ctx, userID, func(u *idmodels.User, now time.Time) bool {
		u.CustomPermissions = slices.DeleteFunc(u.CustomPermissions, func(p string) bool { return p == permission })
		u.PermissionsUpdatedBy = revokedBy
		u.PermissionsUpdatedAt = now
		return true
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "custom permission revoked", "user_id", userID, "permission", permission, "revoked_by", revokedBy)
	return nil
}

// mutate loads the user, applies fn and persists when fn reports a change.
// The cache entry is dropped before returning either way.
func (s *Service) mutate(ctx context.Context, userID string, fn func(*idmodels.User, time.Time) bool) error {
	defer s.Invalidate(userID)
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to load user")
	}
	if !fn(user, s.clock.Now().UTC()) {
		return nil
	}
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistenceUnavailable, "failed to update user")
	}
	return nil
}

// HasRole reports whether role is configured.
func (s *Service) HasRole(role string) bool {
	_, ok := s.roles[role]
	return ok
}

// Stats reports the cache size and the configured roles and permissions.
func (s *Service) Stats() models.Stats {
	s.mu.Lock()
	cached := len(s.cache)
	s.mu.Unlock()

	grants := make(map[string][]string, len(s.roles))
	var all [][]string
	for role, perms := range s.roles {
		grants[role] = slices.Clone(perms)
		all = append(all, perms)
	}
	permissions := pstrings.Union(all...)
	slices.Sort(permissions)
	return models.Stats{
		CachedUsers: cached,
		Roles:       slices.Sorted(maps.Keys(s.roles)),
		Permissions: permissions,
		RoleGrants:  grants,
	}
}
