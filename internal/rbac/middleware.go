package rbac

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/strataflow/strataflow/internal/catalog"
	"github.com/strataflow/strataflow/internal/platform/httpx"
	"github.com/strataflow/strataflow/internal/shared"
)

// DenialCounter records authorization denials for monitoring.
type DenialCounter interface {
	CountDenial(route string)
}

// Middleware wires authorization guards into HTTP handlers. The guard
// computes decisions; this layer owns translating them into responses.
type Middleware struct {
	Guard     *Guard
	Localizer *Localizer
	Logger    *slog.Logger
	Denials   DenialCounter
}

// RequireAny ensures the current user has at least one of the required
// permissions under the session's selected scope.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			decision, err := m.Guard.resolver.HasAnyPermission(r.Context(), userID, perms, m.requestScope(r))
			if err != nil {
				m.fail(w, "rbac require any", err)
				return
			}
			m.finish(w, r, next, decision)
		})
	}
}

// RequireAll ensures the current user has every required permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			decision, err := m.Guard.resolver.HasAllPermissions(r.Context(), userID, perms, m.requestScope(r))
			if err != nil {
				m.fail(w, "rbac require all", err)
				return
			}
			m.finish(w, r, next, decision)
		})
	}
}

// RequireLevel ensures the current user's highest privilege level is at
// most minLevel (lower numbers are more privileged).
func (m Middleware) RequireLevel(minLevel int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			decision, err := m.Guard.ProtectRouteByRoleLevel(r.Context(), userID, minLevel, m.requestScope(r))
			if err != nil {
				m.fail(w, "rbac require level", err)
				return
			}
			m.finish(w, r, next, decision)
		})
	}
}

// RequireModule applies the coarse module-visibility gate using the role
// name stored on the session at login. It never consults permissions.
func (m Middleware) RequireModule(module catalog.Module) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			role := strings.TrimSpace(sess.Get(shared.SessionKeyRole))
			decision := m.Guard.ProtectRoute(module, role)
			m.finish(w, r, next, decision)
		})
	}
}

// requestScope derives the check scope from the session's selected company
// and project, so every guarded route is evaluated against the same scope
// the data layer filters by.
func (m Middleware) requestScope(r *http.Request) Scope {
	return RequestScope(r)
}

// RequestScope builds the check scope from the request session.
func RequestScope(r *http.Request) Scope {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Scope{}
	}
	var scope Scope
	if v := strings.TrimSpace(sess.Get(shared.SessionKeyCompany)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			scope.CompanyID = &id
		}
	}
	if v := strings.TrimSpace(sess.Get(shared.SessionKeySelectedProject)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			scope.ProjectID = &id
		}
	}
	return scope
}

func (m Middleware) finish(w http.ResponseWriter, r *http.Request, next http.Handler, decision Decision) {
	if decision.Allowed {
		next.ServeHTTP(w, r)
		return
	}
	if m.Denials != nil {
		route := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.Denials.CountDenial(route)
	}
	detail := decision.Reason
	if m.Localizer != nil {
		detail = m.Localizer.DenialMessage(r.Header.Get("Accept-Language"), decision)
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", detail)
}

func (m Middleware) fail(w http.ResponseWriter, msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
