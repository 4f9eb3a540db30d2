package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/strataflow/strataflow/internal/platform/httpx"
	"github.com/strataflow/strataflow/internal/rbac"
	"github.com/strataflow/strataflow/internal/shared"
)

// RoleSource resolves the primary role recorded on the session at login.
type RoleSource interface {
	PrimaryRole(ctx context.Context, userID int64, scope rbac.Scope) (string, bool, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	roles          RoleSource
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles RoleSource, sessions *shared.SessionManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		roles:          roles,
		sessionManager: sessions,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.ErrorContext(r.Context(), "session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "something went wrong")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	role := ""
	if h.roles != nil {
		name, ok, err := h.roles.PrimaryRole(r.Context(), user.ID, rbac.Scope{})
		if err != nil {
			h.logger.WarnContext(r.Context(), "resolve primary role", slog.Any("error", err))
		} else if ok {
			role = name
			sess.Set(shared.SessionKeyRole, name)
		}
	}

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.WarnContext(r.Context(), "register session", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, loginResponse{UserID: user.ID, Email: user.Email, Role: role})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.WarnContext(r.Context(), "remove session", slog.Any("error", err))
		}
		// The selected project dies with the session.
		sess.Delete(shared.SessionKeySelectedProject)
		h.sessionManager.Destroy(sess)
	}
	httpx.NoContent(w)
}
