package tenancy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strataflow/strataflow/internal/catalog"
	"github.com/strataflow/strataflow/internal/scope"
)

// Repository provides PostgreSQL backed persistence for companies, projects
// and units.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCompanies returns all companies ordered by name.
func (r *Repository) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM companies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// GetProject fetches one project.
func (r *Repository) GetProject(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, code, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.CompanyID, &p.Name, &p.Code, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	return p, nil
}

// ProjectsByID returns the named projects ordered by name.
func (r *Repository) ProjectsByID(ctx context.Context, ids []int64) ([]Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, code, created_at FROM projects WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Code, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// AccessibleProjects derives the set of project ids a user may operate on
// from their role assignments. A super_admin role or a fully unscoped
// assignment grants every project; a company-scoped assignment grants every
// project of that company; otherwise only explicitly assigned projects.
func (r *Repository) AccessibleProjects(ctx context.Context, userID int64) ([]int64, error) {
	var unscoped bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN roles ro ON ro.id = ur.role_id
			WHERE ur.user_id = $1
			  AND (ro.name = $2 OR (ur.company_id IS NULL AND ur.project_id IS NULL))
		)`, userID, catalog.RoleSuperAdmin).Scan(&unscoped)
	if err != nil {
		return nil, err
	}

	query := `SELECT id FROM projects ORDER BY id`
	args := []any{}
	if !unscoped {
		query = `SELECT DISTINCT p.id FROM projects p
			JOIN user_roles ur ON ur.user_id = $1
			 AND (ur.project_id = p.id OR (ur.project_id IS NULL AND ur.company_id = p.company_id))
			ORDER BY p.id`
		args = append(args, userID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUnits returns units visible under the caller's project scope.
func (r *Repository) ListUnits(ctx context.Context, projectID *int64, role string) ([]Unit, error) {
	query := `SELECT id, project_id, number, COALESCE(block, ''), owner_id, created_at FROM units WHERE 1=1`
	var args []any
	query, args = scope.AddProjectFilter(query, args, projectID, role, "project_id")
	query += ` ORDER BY project_id, number`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.Number, &u.Block, &u.OwnerID, &u.CreatedAt); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
