package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strataflow/strataflow/internal/catalog"
)

type record struct {
	ID        int64
	ProjectID *int64
}

func (r record) ProjectScope() *int64 { return r.ProjectID }

func pid(v int64) *int64 { return &v }

func dataset() []record {
	return []record{
		{ID: 1, ProjectID: pid(10)},
		{ID: 2, ProjectID: pid(10)},
		{ID: 3, ProjectID: pid(20)},
		{ID: 4, ProjectID: nil},
	}
}

func TestFilterRestrictsToProject(t *testing.T) {
	got := Filter(dataset(), pid(10), "staff")
	require.Len(t, got, 2)
	for _, r := range got {
		require.Equal(t, int64(10), *r.ProjectID)
	}
}

func TestFilterScopeIsolation(t *testing.T) {
	a := Filter(dataset(), pid(10), "project_admin")
	b := Filter(dataset(), pid(20), "project_admin")

	seen := make(map[int64]bool)
	for _, r := range a {
		seen[r.ID] = true
	}
	for _, r := range b {
		require.False(t, seen[r.ID], "record %d visible under both projects", r.ID)
	}
}

func TestFilterSuperAdminUnscoped(t *testing.T) {
	all := dataset()
	require.Equal(t, all, Filter(all, pid(10), catalog.RoleSuperAdmin))
	require.Equal(t, all, Filter(all, pid(999), catalog.RoleSuperAdmin))
	require.Equal(t, all, Filter(all, nil, catalog.RoleSuperAdmin))
}

func TestFilterNoSelectionUnchanged(t *testing.T) {
	all := dataset()
	require.Equal(t, all, Filter(all, nil, "staff"))
}

func TestAddProjectFilterAppendsPredicate(t *testing.T) {
	base := "SELECT id FROM bills WHERE company_id = $1"
	args := []any{int64(4)}

	query, got := AddProjectFilter(base, args, pid(10), "accountant", "project_id")
	require.Equal(t, base+" AND project_id = $2", query)
	require.Equal(t, []any{int64(4), int64(10)}, got)
}

func TestAddProjectFilterExemptions(t *testing.T) {
	base := "SELECT id FROM bills WHERE company_id = $1"
	args := []any{int64(4)}

	query, got := AddProjectFilter(base, args, pid(10), catalog.RoleSuperAdmin, "project_id")
	require.Equal(t, base, query)
	require.Equal(t, args, got)

	query, got = AddProjectFilter(base, args, nil, "staff", "project_id")
	require.Equal(t, base, query)
	require.Equal(t, args, got)
}
