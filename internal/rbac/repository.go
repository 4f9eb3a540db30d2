package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strataflow/strataflow/internal/catalog"
	"github.com/strataflow/strataflow/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for roles, permissions
// and user-role assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles ordered by level, most privileged first.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, display_name, level, created_at, updated_at FROM roles ORDER BY level, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, display_name, level, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, displayName string, level int) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, display_name, level) VALUES ($1, $2, $3) RETURNING id, name, display_name, level, created_at, updated_at`,
		name, displayName, level).
		Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates an existing role's display name and level.
func (r *Repository) UpdateRole(ctx context.Context, id int64, displayName string, level int) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET display_name = $2, level = $3, updated_at = NOW() WHERE id = $1 RETURNING id, name, display_name, level, created_at, updated_at`,
		id, displayName, level).
		Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role by ID. A role still referenced by assignments is
// rejected with ErrRoleInUse.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrRoleInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPermissions returns all registered permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, module, action, label FROM permissions ORDER BY module, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Label); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// EnsurePermission upserts a permission, validating it against the catalog.
func (r *Repository) EnsurePermission(ctx context.Context, module catalog.Module, action catalog.Action, label string) (Permission, error) {
	if _, _, err := catalog.ParsePermission(catalog.Name(module, action)); err != nil {
		return Permission{}, err
	}
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (module, action, label) VALUES ($1, $2, $3)
		 ON CONFLICT (module, action) DO UPDATE SET label = EXCLUDED.label
		 RETURNING id, module, action, label`,
		module, action, label).
		Scan(&p.ID, &p.Module, &p.Action, &p.Label)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// AssignmentsForUser returns every role assignment held by the user.
func (r *Repository) AssignmentsForUser(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, role_id, company_id, project_id, created_at FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CompanyID, &a.ProjectID, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// RolesByID loads the given roles keyed by ID.
func (r *Repository) RolesByID(ctx context.Context, ids []int64) (map[int64]Role, error) {
	if len(ids) == 0 {
		return map[int64]Role{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, display_name, level, created_at, updated_at FROM roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := make(map[int64]Role, len(ids))
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles[role.ID] = role
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// PermissionNamesForRoles returns the deduplicated permission names granted
// to any of the given roles.
func (r *Repository) PermissionNamesForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.module || '.' || p.action
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = ANY($1)
		 ORDER BY 1`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// ReplaceRolePermissions atomically swaps a role's permission set using
// delete-all-then-insert inside one transaction, so a failed write can never
// leave the role half-updated or observably empty.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permID); err != nil {
				return fmt.Errorf("rbac: attach permission %d: %w", permID, err)
			}
		}
		return nil
	})
}

// AssignRole grants a role to a user under the given scope. Duplicate
// assignments are ignored.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64, scope Scope) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, company_id, project_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT DO NOTHING`,
		userID, roleID, scope.CompanyID, scope.ProjectID)
	return err
}

// UserEmail resolves the email address for assignment notifications.
func (r *Repository) UserEmail(ctx context.Context, userID int64) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return email, nil
}

// RevokeRole removes a role assignment matching the given scope exactly.
func (r *Repository) RevokeRole(ctx context.Context, userID, roleID int64, scope Scope) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles
		 WHERE user_id = $1 AND role_id = $2
		   AND company_id IS NOT DISTINCT FROM $3
		   AND project_id IS NOT DISTINCT FROM $4`,
		userID, roleID, scope.CompanyID, scope.ProjectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
