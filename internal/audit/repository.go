package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository writes and reads audit_logs. Insert-only on the write side;
// nothing in the application updates or deletes rows in that table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one audit entry.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.ResourceType == "" {
		return errors.New("audit: entry requires action and resource type")
	}
	oldJSON, err := marshalSnapshot(entry.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalSnapshot(entry.NewValues)
	if err != nil {
		return err
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, old_values, new_values, company_id, project_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID, oldJSON, newJSON, entry.CompanyID, entry.ProjectID, createdAt)
	return err
}

// List returns entries newest-first with offset pagination and the exact
// total count of matching rows.
func (r *Repository) List(ctx context.Context, filters Filters) (Result, error) {
	where, args := buildWhere(filters)

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return Result{}, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(
		`SELECT id, actor_id, action, resource_type, resource_id, old_values, new_values, company_id, project_id, created_at
		 FROM audit_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var oldJSON, newJSON []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &oldJSON, &newJSON, &e.CompanyID, &e.ProjectID, &e.CreatedAt); err != nil {
			return Result{}, err
		}
		if err := unmarshalSnapshot(oldJSON, &e.OldValues); err != nil {
			return Result{}, err
		}
		if err := unmarshalSnapshot(newJSON, &e.NewValues); err != nil {
			return Result{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return Result{Entries: entries, Total: total}, nil
}

func buildWhere(filters Filters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.ActorID != nil {
		add("actor_id = $%d", *filters.ActorID)
	}
	if filters.Action != "" {
		add("action = $%d", filters.Action)
	}
	if filters.ResourceType != "" {
		add("resource_type = $%d", filters.ResourceType)
	}
	if !filters.DateFrom.IsZero() {
		add("created_at >= $%d", filters.DateFrom)
	}
	if !filters.DateTo.IsZero() {
		add("created_at <= $%d", filters.DateTo)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func marshalSnapshot(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

func unmarshalSnapshot(raw []byte, dest *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
