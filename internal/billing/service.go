package billing

import (
	"context"
	"errors"
	"strconv"

	"github.com/strataflow/strataflow/internal/audit"
	"github.com/strataflow/strataflow/internal/catalog"
	"github.com/strataflow/strataflow/internal/rbac"
	"github.com/strataflow/strataflow/internal/shared"
)

// RepositoryPort defines data access methods for billing.
type RepositoryPort interface {
	ListBills(ctx context.Context, projectID *int64, role string, limit, offset int) ([]Bill, error)
	GetBill(ctx context.Context, id int64) (Bill, error)
	CreateBill(ctx context.Context, bill Bill) (Bill, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	CreatePayment(ctx context.Context, payment Payment) (Payment, error)
	ConfirmPayment(ctx context.Context, paymentID, confirmedBy int64) (Payment, error)
}

// Authorizer answers permission checks for the acting user.
type Authorizer interface {
	CheckPermission(ctx context.Context, userID int64, permission string, scope rbac.Scope) (rbac.Decision, error)
}

// Recorder appends audit entries without ever failing the caller.
type Recorder interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service handles billing business logic. Every operation checks its
// permission before touching the repository, so a denial never issues a
// scoped query.
type Service struct {
	repo     RepositoryPort
	authz    Authorizer
	recorder Recorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz Authorizer, recorder Recorder) *Service {
	return &Service{repo: repo, authz: authz, recorder: recorder}
}

// Actor identifies the caller of a billing operation.
type Actor struct {
	UserID int64
	Role   string
	Scope  rbac.Scope
}

func (s *Service) authorize(ctx context.Context, actor Actor, permission string) error {
	decision, err := s.authz.CheckPermission(ctx, actor.UserID, permission, actor.Scope)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return shared.ErrForbidden
	}
	return nil
}

// List returns bills under the actor's selected project scope.
func (s *Service) List(ctx context.Context, actor Actor, limit, offset int) ([]Bill, error) {
	if err := s.authorize(ctx, actor, catalog.Name(catalog.ModuleBilling, catalog.ActionView)); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListBills(ctx, actor.Scope.ProjectID, actor.Role, limit, offset)
}

// Get fetches one bill visible to the actor.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (Bill, error) {
	if err := s.authorize(ctx, actor, catalog.Name(catalog.ModuleBilling, catalog.ActionView)); err != nil {
		return Bill{}, err
	}
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if actor.Role != catalog.RoleSuperAdmin && actor.Scope.ProjectID != nil && bill.ProjectID != *actor.Scope.ProjectID {
		return Bill{}, ErrNotFound
	}
	return bill, nil
}

// CreateBill issues a new pending bill.
func (s *Service) CreateBill(ctx context.Context, actor Actor, bill Bill) (Bill, error) {
	if err := s.authorize(ctx, actor, catalog.Name(catalog.ModuleBilling, catalog.ActionAdd)); err != nil {
		return Bill{}, err
	}
	if bill.ProjectID == 0 || bill.UnitID == 0 {
		return Bill{}, errors.New("billing: project and unit required")
	}
	if bill.Amount <= 0 {
		return Bill{}, errors.New("billing: amount must be positive")
	}
	created, err := s.repo.CreateBill(ctx, bill)
	if err != nil {
		return Bill{}, err
	}
	s.audit(ctx, actor, "bill.create", "bill", created.ID, &created.ProjectID, nil, billSnapshot(created))
	return created, nil
}

// RegisterPayment records a resident payment, pending confirmation.
func (s *Service) RegisterPayment(ctx context.Context, actor Actor, payment Payment) (Payment, error) {
	if err := s.authorize(ctx, actor, catalog.Name(catalog.ModulePayments, catalog.ActionAdd)); err != nil {
		return Payment{}, err
	}
	bill, err := s.repo.GetBill(ctx, payment.BillID)
	if err != nil {
		return Payment{}, err
	}
	if bill.Status == BillStatusPaid {
		return Payment{}, ErrBillAlreadyPaid
	}
	if payment.Amount <= 0 {
		return Payment{}, errors.New("billing: amount must be positive")
	}
	payment.PaidBy = &actor.UserID
	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		return Payment{}, err
	}
	s.audit(ctx, actor, "payment.register", "payment", created.ID, &bill.ProjectID, nil, paymentSnapshot(created))
	return created, nil
}

// ConfirmPayment confirms a pending payment and marks its bill paid. The
// audit write happens after the confirmation commits and its outcome never
// changes the result reported to the caller.
func (s *Service) ConfirmPayment(ctx context.Context, actor Actor, paymentID int64) (Payment, error) {
	if err := s.authorize(ctx, actor, catalog.Name(catalog.ModuleBilling, catalog.ActionApprove)); err != nil {
		return Payment{}, err
	}
	before, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	bill, err := s.repo.GetBill(ctx, before.BillID)
	if err != nil {
		return Payment{}, err
	}
	confirmed, err := s.repo.ConfirmPayment(ctx, paymentID, actor.UserID)
	if err != nil {
		return Payment{}, err
	}
	s.audit(ctx, actor, "payment.confirm", "payment", confirmed.ID, &bill.ProjectID,
		paymentSnapshot(before), paymentSnapshot(confirmed))
	return confirmed, nil
}

func (s *Service) audit(ctx context.Context, actor Actor, action, resourceType string, resourceID int64, projectID *int64, oldValues, newValues map[string]any) {
	if s.recorder == nil {
		return
	}
	s.recorder.Log(ctx, audit.Entry{
		ActorID:      &actor.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   strconv.FormatInt(resourceID, 10),
		OldValues:    oldValues,
		NewValues:    newValues,
		CompanyID:    actor.Scope.CompanyID,
		ProjectID:    projectID,
	})
}

func billSnapshot(b Bill) map[string]any {
	return map[string]any{
		"project_id": b.ProjectID,
		"unit_id":    b.UnitID,
		"period":     b.Period,
		"amount":     b.Amount,
		"status":     b.Status,
	}
}

func paymentSnapshot(p Payment) map[string]any {
	snap := map[string]any{
		"bill_id": p.BillID,
		"amount":  p.Amount,
		"method":  p.Method,
		"status":  p.Status,
	}
	if p.ConfirmedBy != nil {
		snap["confirmed_by"] = *p.ConfirmedBy
	}
	return snap
}
