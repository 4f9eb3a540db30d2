package audithttp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/strataflow/strataflow/internal/audit"
	"github.com/strataflow/strataflow/internal/platform/httpx"
	"github.com/strataflow/strataflow/internal/rbac"
	"github.com/strataflow/strataflow/internal/shared"
)

const maxDateRange = 90 * 24 * time.Hour

// ListService defines the business contract for audit queries.
type ListService interface {
	List(ctx context.Context, filters audit.Filters) (audit.Result, error)
}

// Authorizer resolves permissions for the current user.
type Authorizer interface {
	CheckPermission(ctx context.Context, userID int64, permission string, scope rbac.Scope) (rbac.Decision, error)
}

// Handler serves the audit log query API.
type Handler struct {
	logger  *slog.Logger
	service ListService
	authz   Authorizer
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service ListService, authz Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz, now: time.Now}
}

type listResponse struct {
	Entries    []audit.Entry     `json:"entries"`
	Total      int               `json:"total"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !h.authorize(w, r, userID, "reports.view") {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit logs", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	entries := result.Entries
	if entries == nil {
		entries = []audit.Entry{}
	}
	perPage := filters.Limit
	if perPage <= 0 {
		perPage = 20
	} else if perPage > 100 {
		perPage = 100
	}
	page := filters.Offset/perPage + 1
	httpx.JSON(w, http.StatusOK, listResponse{
		Entries:    entries,
		Total:      result.Total,
		Pagination: shared.NewPagination(page, perPage, result.Total),
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !h.authorize(w, r, userID, "reports.export") {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	// Export pages through everything that matches the filter window.
	filters.Limit = 100
	filters.Offset = 0
	var entries []audit.Entry
	for {
		result, err := h.service.List(r.Context(), filters)
		if err != nil {
			h.logger.Error("export audit logs", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		entries = append(entries, result.Entries...)
		if len(entries) >= result.Total || len(result.Entries) == 0 {
			break
		}
		filters.Offset += filters.Limit
	}
	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, entries); err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-log.csv"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, userID int64, permission string) bool {
	if h.authz == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return false
	}
	decision, err := h.authz.CheckPermission(r.Context(), userID, permission, rbac.RequestScope(r))
	if err != nil {
		h.logger.Error("authorize audit access", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return false
	}
	if !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return false
	}
	return true
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		Action:       strings.TrimSpace(q.Get("action")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
	}
	if v := strings.TrimSpace(q.Get("actor_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return audit.Filters{}, errors.New("invalid actor_id")
		}
		filters.ActorID = &id
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return audit.Filters{}, errors.New("invalid from date")
		}
		filters.DateFrom = t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return audit.Filters{}, errors.New("invalid to date")
		}
		filters.DateTo = t.Add(24*time.Hour - time.Nanosecond)
	}
	if !filters.DateFrom.IsZero() && !filters.DateTo.IsZero() {
		if filters.DateFrom.After(filters.DateTo) {
			return audit.Filters{}, errors.New("date range inverted")
		}
		if filters.DateTo.Sub(filters.DateFrom) > maxDateRange {
			return audit.Filters{}, errors.New("date range too wide")
		}
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return audit.Filters{}, errors.New("invalid limit")
		}
		filters.Limit = n
	}
	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return audit.Filters{}, errors.New("invalid offset")
		}
		filters.Offset = n
	}
	return filters, nil
}
