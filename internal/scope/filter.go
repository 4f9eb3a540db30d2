package scope

import (
	"fmt"

	"github.com/strataflow/strataflow/internal/catalog"
)

// Scoped is implemented by any record carrying an optional project id.
type Scoped interface {
	ProjectScope() *int64
}

// Exempt reports whether the role bypasses project scoping entirely.
func Exempt(role string) bool {
	return role == catalog.RoleSuperAdmin
}

// Filter restricts items to the selected project. Super admins and an
// empty selection see the input unchanged. Every module applies this one
// rule, so two callers with the same (role, projectID) always observe the
// same subset of a dataset.
func Filter[T Scoped](items []T, projectID *int64, role string) []T {
	if Exempt(role) || projectID == nil {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if own := item.ProjectScope(); own != nil && *own == *projectID {
			out = append(out, item)
		}
	}
	return out
}

// AddProjectFilter appends the same rule to a SQL query. The column must
// come from a trusted constant, never user input.
func AddProjectFilter(query string, args []any, projectID *int64, role string, column string) (string, []any) {
	if Exempt(role) || projectID == nil {
		return query, args
	}
	args = append(args, *projectID)
	return fmt.Sprintf("%s AND %s = $%d", query, column, len(args)), args
}
