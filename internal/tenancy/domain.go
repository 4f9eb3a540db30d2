package tenancy

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("tenancy: not found")

// Company is the top-level tenant.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a managed property development under a company.
type Project struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Unit is a sellable/rentable unit inside a project.
type Unit struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Number    string    `json:"number"`
	Block     string    `json:"block,omitempty"`
	OwnerID   *int64    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectScope lets units pass through the project data filter.
func (u Unit) ProjectScope() *int64 {
	id := u.ProjectID
	return &id
}
