// Package catalog holds the static permission catalog: the closed set of
// modules and actions, the composed permission names, and the coarse
// module-visibility table checked before fine-grained permission resolution.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Module identifies a functional area of the application.
type Module string

// Known modules.
const (
	ModuleBilling     Module = "billing"
	ModulePayments    Module = "payments"
	ModuleMaintenance Module = "maintenance"
	ModuleUnits       Module = "units"
	ModuleParcels     Module = "parcels"
	ModuleVehicles    Module = "vehicles"
	ModulePets        Module = "pets"
	ModuleVendors     Module = "vendors"
	ModuleUsers       Module = "users"
	ModuleRoles       Module = "roles"
	ModuleReports     Module = "reports"
	ModuleSettings    Module = "settings"
)

// Action identifies an operation kind within a module.
type Action string

// Known actions.
const (
	ActionView    Action = "view"
	ActionAdd     Action = "add"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionPrint   Action = "print"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
	ActionAssign  Action = "assign"
)

// Role names referenced by the module access table.
const (
	RoleSuperAdmin   = "super_admin"
	RoleCompanyAdmin = "company_admin"
	RoleProjectAdmin = "project_admin"
	RoleStaff        = "staff"
	RoleAccountant   = "accountant"
	RoleResident     = "resident"
)

var modules = map[Module]struct{}{
	ModuleBilling: {}, ModulePayments: {}, ModuleMaintenance: {}, ModuleUnits: {},
	ModuleParcels: {}, ModuleVehicles: {}, ModulePets: {}, ModuleVendors: {},
	ModuleUsers: {}, ModuleRoles: {}, ModuleReports: {}, ModuleSettings: {},
}

var actions = map[Action]struct{}{
	ActionView: {}, ActionAdd: {}, ActionEdit: {}, ActionDelete: {},
	ActionPrint: {}, ActionExport: {}, ActionApprove: {}, ActionAssign: {},
}

// moduleAccess maps each module to the role names allowed to see it at all.
// This gate is coarser and cheaper than permission resolution and is checked
// first. super_admin is implicit everywhere and omitted for brevity.
var moduleAccess = map[Module][]string{
	ModuleBilling:     {RoleCompanyAdmin, RoleProjectAdmin, RoleAccountant},
	ModulePayments:    {RoleCompanyAdmin, RoleProjectAdmin, RoleAccountant},
	ModuleMaintenance: {RoleCompanyAdmin, RoleProjectAdmin, RoleStaff, RoleResident},
	ModuleUnits:       {RoleCompanyAdmin, RoleProjectAdmin, RoleStaff},
	ModuleParcels:     {RoleCompanyAdmin, RoleProjectAdmin, RoleStaff, RoleResident},
	ModuleVehicles:    {RoleCompanyAdmin, RoleProjectAdmin, RoleStaff, RoleResident},
	ModulePets:        {RoleCompanyAdmin, RoleProjectAdmin, RoleStaff, RoleResident},
	ModuleVendors:     {RoleCompanyAdmin, RoleProjectAdmin, RoleStaff},
	ModuleUsers:       {RoleCompanyAdmin, RoleProjectAdmin},
	ModuleRoles:       {RoleCompanyAdmin},
	ModuleReports:     {RoleCompanyAdmin, RoleProjectAdmin, RoleAccountant},
	ModuleSettings:    {RoleCompanyAdmin},
}

// Name composes the canonical permission name used throughout checks.
func Name(m Module, a Action) string {
	return string(m) + "." + string(a)
}

// ValidModule reports whether m belongs to the closed module set.
func ValidModule(m Module) bool {
	_, ok := modules[m]
	return ok
}

// ValidAction reports whether a belongs to the closed action set.
func ValidAction(a Action) bool {
	_, ok := actions[a]
	return ok
}

// ParsePermission splits and validates a "module.action" permission name.
// Unknown names are a configuration fault, not a silent false.
func ParsePermission(name string) (Module, Action, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	idx := strings.IndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return "", "", fmt.Errorf("catalog: malformed permission %q", name)
	}
	m, a := Module(name[:idx]), Action(name[idx+1:])
	if !ValidModule(m) {
		return "", "", fmt.Errorf("catalog: unknown module %q", m)
	}
	if !ValidAction(a) {
		return "", "", fmt.Errorf("catalog: unknown action %q", a)
	}
	return m, a, nil
}

// Modules returns the known module names sorted.
func Modules() []Module {
	out := make([]Module, 0, len(modules))
	for m := range modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actions returns the known action names sorted.
func Actions() []Action {
	out := make([]Action, 0, len(actions))
	for a := range actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllPermissionNames enumerates every module.action combination.
func AllPermissionNames() []string {
	mods := Modules()
	acts := Actions()
	out := make([]string, 0, len(mods)*len(acts))
	for _, m := range mods {
		for _, a := range acts {
			out = append(out, Name(m, a))
		}
	}
	return out
}

// ModuleVisible reports whether the given role may see the module's routes
// and menu entries at all. super_admin always passes.
func ModuleVisible(m Module, role string) bool {
	if role == RoleSuperAdmin {
		return true
	}
	for _, allowed := range moduleAccess[m] {
		if strings.EqualFold(allowed, role) {
			return true
		}
	}
	return false
}

// RolesForModule returns the configured role names for a module, excluding
// the implicit super_admin.
func RolesForModule(m Module) []string {
	out := make([]string, len(moduleAccess[m]))
	copy(out, moduleAccess[m])
	return out
}

// AccessibleModules derives the modules visible to a role by scanning the
// access table once. The result is a pure function of the role name.
func AccessibleModules(role string) []Module {
	out := make([]Module, 0, len(moduleAccess))
	for _, m := range Modules() {
		if ModuleVisible(m, role) {
			out = append(out, m)
		}
	}
	return out
}

var knownRoles = map[string]struct{}{
	RoleSuperAdmin: {}, RoleCompanyAdmin: {}, RoleProjectAdmin: {},
	RoleStaff: {}, RoleAccountant: {}, RoleResident: {},
}

// Validate checks catalog consistency at startup: every access-table module
// is a known module and every referenced role name is known. Stale entries
// fail loudly here instead of silently denying at check time.
func Validate() error {
	for m, roles := range moduleAccess {
		if !ValidModule(m) {
			return fmt.Errorf("catalog: access table references unknown module %q", m)
		}
		for _, role := range roles {
			if _, ok := knownRoles[role]; !ok {
				return fmt.Errorf("catalog: access table for %q references unknown role %q", m, role)
			}
		}
	}
	for _, name := range AllPermissionNames() {
		if _, _, err := ParsePermission(name); err != nil {
			return err
		}
	}
	return nil
}
