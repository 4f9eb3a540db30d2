package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strataflow/strataflow/internal/platform/db"
	"github.com/strataflow/strataflow/internal/scope"
)

// Repository provides PostgreSQL backed persistence for bills and payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const billColumns = `id, project_id, unit_id, period, description, amount, status, due_date, paid_at, created_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.ProjectID, &b.UnitID, &b.Period, &b.Description, &b.Amount, &b.Status, &b.DueDate, &b.PaidAt, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, ErrNotFound
	}
	return b, err
}

// ListBills returns bills visible under the caller's project scope, newest
// first.
func (r *Repository) ListBills(ctx context.Context, projectID *int64, role string, limit, offset int) ([]Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE 1=1`
	var args []any
	query, args = scope.AddProjectFilter(query, args, projectID, role, "project_id")
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY due_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// GetBill fetches one bill.
func (r *Repository) GetBill(ctx context.Context, id int64) (Bill, error) {
	return scanBill(r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id))
}

// CreateBill inserts a pending bill.
func (r *Repository) CreateBill(ctx context.Context, bill Bill) (Bill, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO bills (project_id, unit_id, period, description, amount, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+billColumns,
		bill.ProjectID, bill.UnitID, bill.Period, bill.Description, bill.Amount, BillStatusPending, bill.DueDate).
		Scan(&bill.ID, &bill.ProjectID, &bill.UnitID, &bill.Period, &bill.Description, &bill.Amount, &bill.Status, &bill.DueDate, &bill.PaidAt, &bill.CreatedAt)
	return bill, err
}

const paymentColumns = `id, bill_id, amount, method, reference, status, paid_by, confirmed_by, confirmed_at, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.BillID, &p.Amount, &p.Method, &p.Reference, &p.Status, &p.PaidBy, &p.ConfirmedBy, &p.ConfirmedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

// GetPayment fetches one payment.
func (r *Repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// CreatePayment records a pending payment against a bill.
func (r *Repository) CreatePayment(ctx context.Context, payment Payment) (Payment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO payments (bill_id, amount, method, reference, status, paid_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+paymentColumns,
		payment.BillID, payment.Amount, payment.Method, payment.Reference, PaymentStatusPending, payment.PaidBy).
		Scan(&payment.ID, &payment.BillID, &payment.Amount, &payment.Method, &payment.Reference, &payment.Status, &payment.PaidBy, &payment.ConfirmedBy, &payment.ConfirmedAt, &payment.CreatedAt)
	return payment, err
}

// ConfirmPayment marks the payment confirmed and its bill paid in one
// transaction.
func (r *Repository) ConfirmPayment(ctx context.Context, paymentID, confirmedBy int64) (Payment, error) {
	var payment Payment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID))
		if err != nil {
			return err
		}
		if p.Status == PaymentStatusConfirmed {
			return ErrPaymentConfirmed
		}

		now := time.Now().UTC()
		payment, err = scanPayment(tx.QueryRow(ctx, `UPDATE payments SET status = $2, confirmed_by = $3, confirmed_at = $4
			WHERE id = $1 RETURNING `+paymentColumns,
			paymentID, PaymentStatusConfirmed, confirmedBy, now))
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `UPDATE bills SET status = $2, paid_at = $3 WHERE id = $1 AND status <> $2`,
			p.BillID, BillStatusPaid, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrBillAlreadyPaid
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}
