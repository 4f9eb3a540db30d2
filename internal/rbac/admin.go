package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/strataflow/strataflow/internal/audit"
	"github.com/strataflow/strataflow/internal/authcache"
	"github.com/strataflow/strataflow/internal/shared"
)

// AdminStore is the mutation surface for role and assignment management.
type AdminStore interface {
	Store
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, displayName string, level int) (Role, error)
	UpdateRole(ctx context.Context, id int64, displayName string, level int) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AssignRole(ctx context.Context, userID, roleID int64, scope Scope) error
	RevokeRole(ctx context.Context, userID, roleID int64, scope Scope) error
	UserEmail(ctx context.Context, userID int64) (string, error)
}

// Recorder appends audit entries without ever failing the caller.
type Recorder interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Mailer queues role-change notification emails. Delivery is best effort
// and never fails the mutation. Implemented in the jobs package.
type Mailer interface {
	SendRoleChangeMail(ctx context.Context, to, subject, body string) error
}

// Admin owns the administrative mutations on roles, permission sets and
// assignments. These are the only paths that change Role/Permission data;
// the resolver and guards never mutate. Every mutation invalidates the
// authorization cache so a revocation is visible no later than the TTL.
type Admin struct {
	store    AdminStore
	cache    *authcache.Cache
	recorder Recorder
	mail     Mailer
	logger   *slog.Logger
}

// NewAdmin constructs the administrative service. A nil mailer disables
// assignment notifications.
func NewAdmin(store AdminStore, cache *authcache.Cache, recorder Recorder, mail Mailer, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{store: store, cache: cache, recorder: recorder, mail: mail, logger: logger}
}

// ListRoles returns all roles.
func (a *Admin) ListRoles(ctx context.Context) ([]Role, error) {
	return a.store.ListRoles(ctx)
}

// GetRole fetches one role.
func (a *Admin) GetRole(ctx context.Context, id int64) (Role, error) {
	return a.store.GetRole(ctx, id)
}

// ListPermissions returns the registered permission catalog entries.
func (a *Admin) ListPermissions(ctx context.Context) ([]Permission, error) {
	return a.store.ListPermissions(ctx)
}

// CreateRole inserts a new role and audits the creation.
func (a *Admin) CreateRole(ctx context.Context, name, displayName string, level int) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, ErrRoleNameRequired
	}
	if level < 1 {
		return Role{}, ErrInvalidLevel
	}
	role, err := a.store.CreateRole(ctx, name, strings.TrimSpace(displayName), level)
	if err != nil {
		return Role{}, err
	}
	a.audit(ctx, "role.create", "role", strconv.FormatInt(role.ID, 10), nil, roleSnapshot(role))
	return role, nil
}

// UpdateRole edits a role's display name and level and audits the change.
func (a *Admin) UpdateRole(ctx context.Context, id int64, displayName string, level int) (Role, error) {
	if level < 1 {
		return Role{}, ErrInvalidLevel
	}
	before, err := a.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role, err := a.store.UpdateRole(ctx, id, strings.TrimSpace(displayName), level)
	if err != nil {
		return Role{}, err
	}
	if err := a.cache.InvalidateAll(ctx); err != nil {
		return Role{}, err
	}
	a.audit(ctx, "role.update", "role", strconv.FormatInt(id, 10), roleSnapshot(before), roleSnapshot(role))
	return role, nil
}

// DeleteRole removes an unreferenced role and audits the deletion.
func (a *Admin) DeleteRole(ctx context.Context, id int64) error {
	before, err := a.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	if err := a.cache.InvalidateAll(ctx); err != nil {
		return err
	}
	a.audit(ctx, "role.delete", "role", strconv.FormatInt(id, 10), roleSnapshot(before), nil)
	return nil
}

// UpdateRolePermissions atomically replaces a role's permission set, then
// invalidates the whole authorization cache: the change affects every
// holder of the role, and a revocation must never be masked by a stale
// entry beyond the configured TTL.
func (a *Admin) UpdateRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	before, err := a.store.PermissionNamesForRoles(ctx, []int64{roleID})
	if err != nil {
		return err
	}
	if err := a.store.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	if err := a.cache.InvalidateAll(ctx); err != nil {
		return err
	}
	after, err := a.store.PermissionNamesForRoles(ctx, []int64{roleID})
	if err != nil {
		after = nil
	}
	a.audit(ctx, "role.permissions.replace", "role", strconv.FormatInt(roleID, 10),
		map[string]any{"permissions": before},
		map[string]any{"permissions": after})
	return nil
}

// AssignRole grants a role to a user under the given scope and notifies the
// user by email.
func (a *Admin) AssignRole(ctx context.Context, userID, roleID int64, scope Scope) error {
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := a.store.AssignRole(ctx, userID, roleID, scope); err != nil {
		return err
	}
	if err := a.cache.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	a.audit(ctx, "role.assign", "user_role", strconv.FormatInt(userID, 10), nil, assignmentSnapshot(userID, roleID, scope))
	a.notifyRoleChange(ctx, userID, role, "assigned", scope)
	return nil
}

// RevokeRole removes a user's role assignment for the given scope and
// notifies the user by email.
func (a *Admin) RevokeRole(ctx context.Context, userID, roleID int64, scope Scope) error {
	role, roleErr := a.store.GetRole(ctx, roleID)
	if err := a.store.RevokeRole(ctx, userID, roleID, scope); err != nil {
		return err
	}
	if err := a.cache.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	a.audit(ctx, "role.revoke", "user_role", strconv.FormatInt(userID, 10), assignmentSnapshot(userID, roleID, scope), nil)
	if roleErr == nil {
		a.notifyRoleChange(ctx, userID, role, "revoked", scope)
	}
	return nil
}

func (a *Admin) notifyRoleChange(ctx context.Context, userID int64, role Role, verb string, scope Scope) {
	if a.mail == nil {
		return
	}
	email, err := a.store.UserEmail(ctx, userID)
	if err != nil || email == "" {
		a.logger.Warn("role change mail skipped", slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}
	label := role.DisplayName
	if label == "" {
		label = role.Name
	}
	subject := fmt.Sprintf("Role %s: %s", verb, label)
	body := fmt.Sprintf("The %s role has been %s for your account%s.", label, verb, scopeSuffix(scope))
	if err := a.mail.SendRoleChangeMail(ctx, email, subject, body); err != nil {
		a.logger.Warn("role change mail enqueue failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func scopeSuffix(scope Scope) string {
	switch {
	case scope.ProjectID != nil:
		return fmt.Sprintf(" on project %d", *scope.ProjectID)
	case scope.CompanyID != nil:
		return fmt.Sprintf(" across company %d", *scope.CompanyID)
	default:
		return ""
	}
}

func (a *Admin) audit(ctx context.Context, action, resourceType, resourceID string, oldValues, newValues map[string]any) {
	if a.recorder == nil {
		return
	}
	entry := audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
	}
	if actorID, ok := shared.ActorFromContext(ctx); ok {
		entry.ActorID = &actorID
	}
	a.recorder.Log(ctx, entry)
}

func roleSnapshot(role Role) map[string]any {
	return map[string]any{
		"name":         role.Name,
		"display_name": role.DisplayName,
		"level":        role.Level,
	}
}

func assignmentSnapshot(userID, roleID int64, scope Scope) map[string]any {
	snap := map[string]any{"user_id": userID, "role_id": roleID}
	if scope.CompanyID != nil {
		snap["company_id"] = *scope.CompanyID
	}
	if scope.ProjectID != nil {
		snap["project_id"] = *scope.ProjectID
	}
	return snap
}
