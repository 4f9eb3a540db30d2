package billing

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("billing: not found")
	ErrBillAlreadyPaid  = errors.New("billing: bill already paid")
	ErrPaymentConfirmed = errors.New("billing: payment already confirmed")
)

// Bill statuses.
const (
	BillStatusPending = "pending"
	BillStatusPaid    = "paid"
)

// Payment statuses.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
)

// Bill is a periodic charge against a unit.
type Bill struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	UnitID      int64      `json:"unit_id"`
	Period      string     `json:"period"`
	Description string     `json:"description"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	DueDate     time.Time  `json:"due_date"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ProjectScope lets bills pass through the project data filter.
func (b Bill) ProjectScope() *int64 {
	id := b.ProjectID
	return &id
}

// Payment is a resident's payment against a bill, pending until a staff
// member with approval rights confirms it.
type Payment struct {
	ID          int64      `json:"id"`
	BillID      int64      `json:"bill_id"`
	Amount      float64    `json:"amount"`
	Method      string     `json:"method"`
	Reference   string     `json:"reference,omitempty"`
	Status      string     `json:"status"`
	PaidBy      *int64     `json:"paid_by,omitempty"`
	ConfirmedBy *int64     `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
