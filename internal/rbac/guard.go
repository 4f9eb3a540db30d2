package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/strataflow/strataflow/internal/catalog"
)

// Guard is the reusable yes/no check invoked before protected operations.
// It computes decisions only; callers own redirects and error presentation.
type Guard struct {
	resolver *Resolver
}

// NewGuard constructs a Guard around the resolver.
func NewGuard(resolver *Resolver) *Guard {
	return &Guard{resolver: resolver}
}

// ProtectRoute is the coarse module-visibility check against the static
// access table. It never consults fine-grained permissions.
func (g *Guard) ProtectRoute(module catalog.Module, userRole string) Decision {
	if !catalog.ValidModule(module) {
		return Deny(fmt.Sprintf("unknown module %q", module))
	}
	if catalog.ModuleVisible(module, userRole) {
		return Allow()
	}
	return Deny(ReasonModuleHidden)
}

// ProtectRouteByPermission delegates to the permission resolver.
func (g *Guard) ProtectRouteByPermission(ctx context.Context, userID int64, permission string, scope Scope) (Decision, error) {
	return g.resolver.CheckPermission(ctx, userID, permission, scope)
}

// ProtectRouteByRoleLevel grants when the user's highest privilege level is
// at most minLevel. Levels are inverted: fewer means more privileged, so a
// level 1 super-admin passes every minLevel gate.
func (g *Guard) ProtectRouteByRoleLevel(ctx context.Context, userID int64, minLevel int, scope Scope) (Decision, error) {
	level, ok, err := g.resolver.HighestRoleLevel(ctx, userID, scope)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Deny(ReasonNoRoleLevel), nil
	}
	if level > minLevel {
		return Deny(fmt.Sprintf("role level %d exceeds required level %d", level, minLevel)), nil
	}
	return Allow(), nil
}

// AccessibleRoutes derives the route prefixes enabled for a role by scanning
// the module access table once. Pure function of the role name, cacheable.
func (g *Guard) AccessibleRoutes(userRole string) []string {
	mods := catalog.AccessibleModules(userRole)
	routes := make([]string, 0, len(mods))
	for _, m := range mods {
		routes = append(routes, "/"+string(m))
	}
	return routes
}

// CanAccessRoute reports whether the role may reach the given route prefix.
func (g *Guard) CanAccessRoute(userRole, route string) bool {
	route = "/" + strings.TrimPrefix(strings.TrimSpace(route), "/")
	if idx := strings.IndexByte(route[1:], '/'); idx >= 0 {
		route = route[:idx+1]
	}
	for _, allowed := range g.AccessibleRoutes(userRole) {
		if allowed == route {
			return true
		}
	}
	return false
}
