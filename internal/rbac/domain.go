package rbac

import (
	"errors"
	"time"

	"github.com/strataflow/strataflow/internal/catalog"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// ErrRoleInUse indicates a role still referenced by user assignments.
var ErrRoleInUse = errors.New("rbac: role in use")

// ErrRoleNameRequired indicates a missing role name on create.
var ErrRoleNameRequired = errors.New("rbac: role name required")

// ErrInvalidLevel indicates a role level below 1.
var ErrInvalidLevel = errors.New("rbac: role level must be 1 or greater")

// Role represents a named permission grouping with a privilege level.
// A lower level number means higher privilege; super_admin is level 1.
type Role struct {
	ID          int64
	Name        string
	DisplayName string
	Level       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability within a module.
type Permission struct {
	ID     int64
	Module catalog.Module
	Action catalog.Action
	Label  string
}

// Name returns the composed permission name used throughout checks.
func (p Permission) Name() string {
	return catalog.Name(p.Module, p.Action)
}

// Assignment ties a user to a role, optionally scoped to a company and/or
// project. Absent scope fields mean the role applies company/project-wide.
type Assignment struct {
	UserID    int64
	RoleID    int64
	CompanyID *int64
	ProjectID *int64
	CreatedAt time.Time
}

// Scope is the (company, project) pair a check is evaluated against.
// Absent fields mean unscoped/global.
type Scope struct {
	CompanyID *int64
	ProjectID *int64
}

// Matches reports whether an assignment's own scope is compatible with the
// requested scope: each field matches when the assignment leaves it absent
// (global) or when it equals the requested value.
func (a Assignment) Matches(s Scope) bool {
	return scopeFieldMatches(a.CompanyID, s.CompanyID) && scopeFieldMatches(a.ProjectID, s.ProjectID)
}

func scopeFieldMatches(own, requested *int64) bool {
	if own == nil {
		return true
	}
	if requested == nil {
		return false
	}
	return *own == *requested
}

// Decision is the outcome of an authorization check. Denials are values,
// never errors; only storage faults travel the error channel.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the affirmative decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a denial with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Canonical denial reasons.
const (
	ReasonNoRoles      = "user has no roles assigned"
	ReasonNoRoleLevel  = "user has no role level"
	ReasonModuleHidden = "module not accessible for role"
)
