package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/strataflow/strataflow/internal/authcache"
	"github.com/strataflow/strataflow/internal/catalog"
)

// Store is the persistence surface the resolver reads from. It never writes.
type Store interface {
	AssignmentsForUser(ctx context.Context, userID int64) ([]Assignment, error)
	RolesByID(ctx context.Context, ids []int64) (map[int64]Role, error)
	PermissionNamesForRoles(ctx context.Context, roleIDs []int64) ([]string, error)
}

// Resolver computes effective permission sets and privilege levels for a
// user under a requested scope. Lookups are cache-first; absence of data
// resolves to denial, never to an error.
type Resolver struct {
	store Store
	cache *authcache.Cache
}

// NewResolver constructs a Resolver. The cache may be nil, in which case
// every check hits the store.
func NewResolver(store Store, cache *authcache.Cache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// grantSet is the cached snapshot of everything a scope-compatible set of
// role assignments grants a user. One load serves permission checks, level
// checks and route derivation alike.
type grantSet struct {
	HasRoles  bool     `json:"has_roles"`
	Level     int      `json:"level"`
	Primary   string   `json:"primary"`
	RoleNames []string `json:"role_names"`
	Perms     []string `json:"perms"`
}

func (g grantSet) has(perm string) bool {
	for _, granted := range g.Perms {
		if strings.EqualFold(granted, perm) {
			return true
		}
	}
	return false
}

func (r *Resolver) grants(ctx context.Context, userID int64, scope Scope) (grantSet, error) {
	key, err := r.cache.BuildKey(ctx, "grant", userID, scope.CompanyID, scope.ProjectID)
	if err != nil {
		return grantSet{}, err
	}
	var grant grantSet
	err = r.cache.Fetch(ctx, authcache.TierShort, key, &grant, func(ctx context.Context) (any, error) {
		return r.loadGrants(ctx, userID, scope)
	})
	return grant, err
}

func (r *Resolver) loadGrants(ctx context.Context, userID int64, scope Scope) (grantSet, error) {
	assignments, err := r.store.AssignmentsForUser(ctx, userID)
	if err != nil {
		return grantSet{}, fmt.Errorf("rbac: load assignments: %w", err)
	}
	var roleIDs []int64
	seen := make(map[int64]struct{})
	for _, a := range assignments {
		if !a.Matches(scope) {
			continue
		}
		if _, ok := seen[a.RoleID]; ok {
			continue
		}
		seen[a.RoleID] = struct{}{}
		roleIDs = append(roleIDs, a.RoleID)
	}
	if len(roleIDs) == 0 {
		return grantSet{}, nil
	}

	roles, err := r.store.RolesByID(ctx, roleIDs)
	if err != nil {
		return grantSet{}, fmt.Errorf("rbac: load roles: %w", err)
	}
	grant := grantSet{HasRoles: true}
	first := true
	for _, id := range roleIDs {
		role, ok := roles[id]
		if !ok {
			// Stale assignment pointing at a removed role fails safe.
			continue
		}
		grant.RoleNames = append(grant.RoleNames, role.Name)
		if first || role.Level < grant.Level {
			grant.Level = role.Level
			grant.Primary = role.Name
			first = false
		}
	}
	if first {
		return grantSet{}, nil
	}
	sort.Strings(grant.RoleNames)

	perms, err := r.store.PermissionNamesForRoles(ctx, roleIDs)
	if err != nil {
		return grantSet{}, fmt.Errorf("rbac: load permissions: %w", err)
	}
	grant.Perms = perms
	return grant, nil
}

// CheckPermission reports whether the user holds the named permission under
// the requested scope. The permission sets of every scope-compatible role
// are unioned; holding the permission through any one role grants it.
func (r *Resolver) CheckPermission(ctx context.Context, userID int64, permission string, scope Scope) (Decision, error) {
	module, action, err := catalog.ParsePermission(permission)
	if err != nil {
		// Unknown names are a configuration fault and fail safe as denial.
		return Deny(err.Error()), nil
	}
	grant, err := r.grants(ctx, userID, scope)
	if err != nil {
		return Decision{}, err
	}
	if !grant.HasRoles {
		return Deny(ReasonNoRoles), nil
	}
	name := catalog.Name(module, action)
	if grant.has(name) {
		return Allow(), nil
	}
	return Deny(fmt.Sprintf("missing permission %s", name)), nil
}

// HasAnyPermission grants when at least one of the listed permissions is
// held. The union set is resolved once, not per item.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID int64, permissions []string, scope Scope) (Decision, error) {
	valid := normalizeList(permissions)
	if len(valid) == 0 {
		return Deny("no valid permissions requested"), nil
	}
	grant, err := r.grants(ctx, userID, scope)
	if err != nil {
		return Decision{}, err
	}
	if !grant.HasRoles {
		return Deny(ReasonNoRoles), nil
	}
	for _, p := range valid {
		if grant.has(p) {
			return Allow(), nil
		}
	}
	return Deny(fmt.Sprintf("missing any of %s", strings.Join(valid, ", "))), nil
}

// HasAllPermissions grants only when every listed permission is held.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID int64, permissions []string, scope Scope) (Decision, error) {
	for _, raw := range permissions {
		if _, _, err := catalog.ParsePermission(raw); err != nil {
			return Deny(err.Error()), nil
		}
	}
	valid := normalizeList(permissions)
	if len(valid) == 0 {
		return Deny("no valid permissions requested"), nil
	}
	grant, err := r.grants(ctx, userID, scope)
	if err != nil {
		return Decision{}, err
	}
	if !grant.HasRoles {
		return Deny(ReasonNoRoles), nil
	}
	for _, p := range valid {
		if !grant.has(p) {
			return Deny(fmt.Sprintf("missing permission %s", p)), nil
		}
	}
	return Allow(), nil
}

// HighestRoleLevel returns the minimum level value among the user's
// scope-compatible roles; lower numbers are more privileged. ok is false
// when the user has no matching role at all.
func (r *Resolver) HighestRoleLevel(ctx context.Context, userID int64, scope Scope) (level int, ok bool, err error) {
	grant, err := r.grants(ctx, userID, scope)
	if err != nil {
		return 0, false, err
	}
	if !grant.HasRoles {
		return 0, false, nil
	}
	return grant.Level, true, nil
}

// PrimaryRole returns the name of the user's most privileged
// scope-compatible role. ok is false when the user has no role.
func (r *Resolver) PrimaryRole(ctx context.Context, userID int64, scope Scope) (name string, ok bool, err error) {
	grant, err := r.grants(ctx, userID, scope)
	if err != nil {
		return "", false, err
	}
	if !grant.HasRoles {
		return "", false, nil
	}
	return grant.Primary, true, nil
}

// EffectivePermissions returns the deduplicated permission names granted to
// the user under the requested scope.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64, scope Scope) ([]string, error) {
	grant, err := r.grants(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	return grant.Perms, nil
}

// RoleNames returns the names of the user's scope-compatible roles, sorted.
func (r *Resolver) RoleNames(ctx context.Context, userID int64, scope Scope) ([]string, error) {
	grant, err := r.grants(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	return grant.RoleNames, nil
}

func normalizeList(permissions []string) []string {
	var valid []string
	seen := make(map[string]struct{}, len(permissions))
	for _, raw := range permissions {
		m, a, err := catalog.ParsePermission(raw)
		if err != nil {
			continue
		}
		name := catalog.Name(m, a)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		valid = append(valid, name)
	}
	return valid
}
