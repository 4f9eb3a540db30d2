package tenancy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strataflow/strataflow/internal/platform/httpx"
	"github.com/strataflow/strataflow/internal/rbac"
	"github.com/strataflow/strataflow/internal/scope"
	"github.com/strataflow/strataflow/internal/shared"
)

// Handler exposes the project selector and tenancy read endpoints.
type Handler struct {
	logger  *slog.Logger
	repo    *Repository
	manager *scope.Manager
	mw      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, manager *scope.Manager, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, manager: manager, mw: mw}
}

// MountRoutes registers the tenancy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects", h.listProjects)
	r.Put("/projects/selected", h.selectProject)
	r.Delete("/projects/selected", h.clearSelection)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("settings.view"))
		r.Get("/companies", h.listCompanies)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("units.view"))
		r.Get("/units", h.listUnits)
	})
}

// tracker rebuilds the session's scope state machine for this request.
func (h *Handler) tracker(r *http.Request) (*scope.Tracker, bool) {
	userID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		return nil, false
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil, false
	}
	return h.manager.Begin(userID, sess.Get(shared.SessionKeyRole), sess), true
}

type projectSelectorResponse struct {
	Projects []Project `json:"projects"`
	Selected *int64    `json:"selected_project_id"`
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	tracker, ok := h.tracker(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	if err := tracker.Load(r.Context()); err != nil {
		h.fail(w, r, "load accessible projects", err)
		return
	}
	projects, err := h.repo.ProjectsByID(r.Context(), tracker.Accessible())
	if err != nil {
		h.fail(w, r, "list projects", err)
		return
	}
	if projects == nil {
		projects = []Project{}
	}
	httpx.JSON(w, http.StatusOK, projectSelectorResponse{Projects: projects, Selected: tracker.Selected()})
}

type selectProjectRequest struct {
	ProjectID *int64 `json:"project_id"`
}

func (h *Handler) selectProject(w http.ResponseWriter, r *http.Request) {
	tracker, ok := h.tracker(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	var req selectProjectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := tracker.Load(r.Context()); err != nil {
		h.fail(w, r, "load accessible projects", err)
		return
	}
	if err := tracker.Select(r.Context(), req.ProjectID); err != nil {
		if errors.Is(err, scope.ErrProjectNotAccessible) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "project is not accessible")
			return
		}
		h.fail(w, r, "select project", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"selected_project_id": tracker.Selected()})
}

func (h *Handler) clearSelection(w http.ResponseWriter, r *http.Request) {
	tracker, ok := h.tracker(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	if err := tracker.Load(r.Context()); err != nil {
		h.fail(w, r, "load accessible projects", err)
		return
	}
	if err := tracker.Select(r.Context(), nil); err != nil {
		h.fail(w, r, "clear project selection", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.repo.ListCompanies(r.Context())
	if err != nil {
		h.fail(w, r, "list companies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, companies)
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	tracker, ok := h.tracker(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	if err := tracker.Load(r.Context()); err != nil {
		h.fail(w, r, "load accessible projects", err)
		return
	}
	units, err := h.repo.ListUnits(r.Context(), tracker.Selected(), sess.Get(shared.SessionKeyRole))
	if err != nil {
		h.fail(w, r, "list units", err)
		return
	}
	if units == nil {
		units = []Unit{}
	}
	httpx.JSON(w, http.StatusOK, units)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "something went wrong")
}
