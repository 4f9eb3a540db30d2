package rbac

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/strataflow/strataflow/internal/audit"
	"github.com/strataflow/strataflow/internal/authcache"
	"github.com/strataflow/strataflow/internal/catalog"
)

type adminMemoryStore struct {
	*memoryStore
	perms    map[int64]Permission
	nextPerm int64
	nextRole int64
	inUse    map[int64]bool
	emails   map[int64]string
}

func newAdminMemoryStore() *adminMemoryStore {
	return &adminMemoryStore{
		memoryStore: newMemoryStore(),
		perms:       make(map[int64]Permission),
		inUse:       make(map[int64]bool),
		emails:      make(map[int64]string),
		nextPerm:    1,
		nextRole:    1,
	}
}

func (s *adminMemoryStore) UserEmail(ctx context.Context, userID int64) (string, error) {
	email, ok := s.emails[userID]
	if !ok {
		return "", ErrNotFound
	}
	return email, nil
}

func (s *adminMemoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *adminMemoryStore) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (s *adminMemoryStore) CreateRole(ctx context.Context, name, displayName string, level int) (Role, error) {
	role := Role{ID: s.nextRole, Name: name, DisplayName: displayName, Level: level, CreatedAt: time.Now()}
	s.nextRole++
	s.roles[role.ID] = role
	return role, nil
}

func (s *adminMemoryStore) UpdateRole(ctx context.Context, id int64, displayName string, level int) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.DisplayName = displayName
	role.Level = level
	s.roles[id] = role
	return role, nil
}

func (s *adminMemoryStore) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	if s.inUse[id] {
		return ErrRoleInUse
	}
	delete(s.roles, id)
	return nil
}

func (s *adminMemoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (s *adminMemoryStore) addPermission(module catalog.Module, action catalog.Action) Permission {
	p := Permission{ID: s.nextPerm, Module: module, Action: action}
	s.nextPerm++
	s.perms[p.ID] = p
	return p
}

func (s *adminMemoryStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	names := make([]string, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		if p, ok := s.perms[id]; ok {
			names = append(names, p.Name())
		}
	}
	s.rolePerms[roleID] = names
	return nil
}

func (s *adminMemoryStore) AssignRole(ctx context.Context, userID, roleID int64, scope Scope) error {
	s.assign(userID, roleID, scope.CompanyID, scope.ProjectID)
	return nil
}

func (s *adminMemoryStore) RevokeRole(ctx context.Context, userID, roleID int64, scope Scope) error {
	var kept []Assignment
	removed := false
	for _, a := range s.assignments[userID] {
		if !removed && a.RoleID == roleID {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	if !removed {
		return ErrNotFound
	}
	s.assignments[userID] = kept
	return nil
}

type fakeRecorder struct {
	entries []audit.Entry
}

func (r *fakeRecorder) Log(ctx context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

type mailMessage struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	sent []mailMessage
	err  error
}

func (m *fakeMailer) SendRoleChangeMail(ctx context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mailMessage{to: to, subject: subject, body: body})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAdminFixture(t *testing.T) (*Admin, *Resolver, *adminMemoryStore, *fakeRecorder, *fakeMailer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := authcache.New(client, time.Minute, 5*time.Minute, time.Hour)

	store := newAdminMemoryStore()
	recorder := &fakeRecorder{}
	mailer := &fakeMailer{}
	admin := NewAdmin(store, cache, recorder, mailer, testLogger())
	return admin, NewResolver(store, cache), store, recorder, mailer
}

func TestRevocationVisibleAfterInvalidation(t *testing.T) {
	admin, resolver, store, _, _ := newAdminFixture(t)
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, "accountant", "Accountant", 4)
	require.NoError(t, err)
	view := store.addPermission(catalog.ModuleBilling, catalog.ActionView)
	edit := store.addPermission(catalog.ModuleBilling, catalog.ActionEdit)
	require.NoError(t, admin.UpdateRolePermissions(ctx, role.ID, []int64{view.ID, edit.ID}))
	require.NoError(t, admin.AssignRole(ctx, 100, role.ID, Scope{}))

	decision, err := resolver.CheckPermission(ctx, 100, "billing.edit", Scope{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// Revoke billing.edit; the cache was warmed by the check above, but the
	// mutation path invalidates it, so the next check sees the new set.
	require.NoError(t, admin.UpdateRolePermissions(ctx, role.ID, []int64{view.ID}))

	decision, err = resolver.CheckPermission(ctx, 100, "billing.edit", Scope{})
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	decision, err = resolver.CheckPermission(ctx, 100, "billing.view", Scope{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestAssignRoleVisibleAfterInvalidation(t *testing.T) {
	admin, resolver, store, _, _ := newAdminFixture(t)
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, "staff", "Staff", 5)
	require.NoError(t, err)
	view := store.addPermission(catalog.ModuleParcels, catalog.ActionView)
	require.NoError(t, admin.UpdateRolePermissions(ctx, role.ID, []int64{view.ID}))

	// Warm the denial for user 100, then grant the role.
	decision, err := resolver.CheckPermission(ctx, 100, "parcels.view", Scope{})
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	require.NoError(t, admin.AssignRole(ctx, 100, role.ID, Scope{}))

	decision, err = resolver.CheckPermission(ctx, 100, "parcels.view", Scope{})
	require.NoError(t, err)
	require.True(t, decision.Allowed, "assignment must be visible immediately after invalidation")
}

func TestDeleteRoleInUseRejected(t *testing.T) {
	admin, _, store, _, _ := newAdminFixture(t)
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, "resident", "Resident", 6)
	require.NoError(t, err)
	store.inUse[role.ID] = true

	err = admin.DeleteRole(ctx, role.ID)
	require.ErrorIs(t, err, ErrRoleInUse)
}

func TestAdminMutationsAreAudited(t *testing.T) {
	admin, _, store, recorder, _ := newAdminFixture(t)
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, "vendor_manager", "Vendor Manager", 4)
	require.NoError(t, err)
	perm := store.addPermission(catalog.ModuleVendors, catalog.ActionEdit)
	require.NoError(t, admin.UpdateRolePermissions(ctx, role.ID, []int64{perm.ID}))
	require.NoError(t, admin.AssignRole(ctx, 100, role.ID, Scope{ProjectID: ptr(7)}))
	require.NoError(t, admin.RevokeRole(ctx, 100, role.ID, Scope{ProjectID: ptr(7)}))

	var actions []string
	for _, e := range recorder.entries {
		actions = append(actions, e.Action)
	}
	require.Equal(t, []string{"role.create", "role.permissions.replace", "role.assign", "role.revoke"}, actions)

	// The permission replacement records before/after snapshots.
	replace := recorder.entries[1]
	require.NotNil(t, replace.NewValues)
	require.Contains(t, replace.NewValues, "permissions")
}

func TestAssignmentChangesNotifyUser(t *testing.T) {
	admin, _, store, _, mailer := newAdminFixture(t)
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, "accountant", "Accountant", 4)
	require.NoError(t, err)
	store.emails[100] = "finance@example.com"

	require.NoError(t, admin.AssignRole(ctx, 100, role.ID, Scope{ProjectID: ptr(7)}))
	require.NoError(t, admin.RevokeRole(ctx, 100, role.ID, Scope{ProjectID: ptr(7)}))

	require.Len(t, mailer.sent, 2)
	require.Equal(t, "finance@example.com", mailer.sent[0].to)
	require.Contains(t, mailer.sent[0].subject, "assigned")
	require.Contains(t, mailer.sent[0].subject, "Accountant")
	require.Contains(t, mailer.sent[0].body, "project 7")
	require.Contains(t, mailer.sent[1].subject, "revoked")
}

func TestMailFailureDoesNotFailAssignment(t *testing.T) {
	admin, resolver, store, _, mailer := newAdminFixture(t)
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, "staff", "Staff", 5)
	require.NoError(t, err)
	perm := store.addPermission(catalog.ModuleParcels, catalog.ActionView)
	require.NoError(t, admin.UpdateRolePermissions(ctx, role.ID, []int64{perm.ID}))
	store.emails[100] = "staff@example.com"
	mailer.err = errors.New("queue down")

	require.NoError(t, admin.AssignRole(ctx, 100, role.ID, Scope{}))

	decision, err := resolver.CheckPermission(ctx, 100, "parcels.view", Scope{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestMissingEmailSkipsNotification(t *testing.T) {
	admin, _, _, _, mailer := newAdminFixture(t)
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, "resident", "Resident", 6)
	require.NoError(t, err)

	require.NoError(t, admin.AssignRole(ctx, 200, role.ID, Scope{}))
	require.Empty(t, mailer.sent)
}
