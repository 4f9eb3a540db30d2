package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/strataflow/strataflow/internal/catalog"
	"github.com/strataflow/strataflow/internal/platform/httpx"
	"github.com/strataflow/strataflow/internal/rbac"
	"github.com/strataflow/strataflow/internal/shared"
)

// Handler exposes bills and payments as a JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validate: validator.New()}
}

// MountRoutes registers the billing routes. The module gate runs first;
// fine-grained permission checks happen in the service.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireModule(catalog.ModuleBilling))
		r.Get("/bills", h.listBills)
		r.Get("/bills/{id}", h.getBill)
		r.Post("/bills", h.createBill)
		r.Post("/payments/{id}/confirm", h.confirmPayment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireModule(catalog.ModulePayments))
		r.Post("/payments", h.registerPayment)
	})
}

func (h *Handler) actor(r *http.Request) (Actor, bool) {
	userID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		return Actor{}, false
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Actor{}, false
	}
	return Actor{UserID: userID, Role: sess.Get(shared.SessionKeyRole), Scope: rbac.RequestScope(r)}, true
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	bills, err := h.service.List(r.Context(), actor, limit, offset)
	if err != nil {
		h.respondError(w, r, "list bills", err)
		return
	}
	if bills == nil {
		bills = []Bill{}
	}
	httpx.JSON(w, http.StatusOK, bills)
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bill id")
		return
	}
	bill, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, "get bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

type createBillRequest struct {
	ProjectID   int64   `json:"project_id" validate:"required"`
	UnitID      int64   `json:"unit_id" validate:"required"`
	Period      string  `json:"period" validate:"required"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	DueDate     string  `json:"due_date" validate:"required"`
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}
	bill, err := h.service.CreateBill(r.Context(), actor, Bill{
		ProjectID:   req.ProjectID,
		UnitID:      req.UnitID,
		Period:      req.Period,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     dueDate,
	})
	if err != nil {
		h.respondError(w, r, "create bill", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

type registerPaymentRequest struct {
	BillID    int64   `json:"bill_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Method    string  `json:"method" validate:"required"`
	Reference string  `json:"reference"`
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req registerPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.RegisterPayment(r.Context(), actor, Payment{
		BillID:    req.BillID,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		h.respondError(w, r, "register payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	payment, err := h.service.ConfirmPayment(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, "confirm payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you do not have access to this action")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, ErrBillAlreadyPaid), errors.Is(err, ErrPaymentConfirmed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "something went wrong")
	}
}
