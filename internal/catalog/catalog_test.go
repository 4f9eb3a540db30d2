package catalog

import "testing"

func TestParsePermission(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		module  Module
		action  Action
		wantErr bool
	}{
		{"valid", "billing.edit", ModuleBilling, ActionEdit, false},
		{"valid upper", "Billing.VIEW", ModuleBilling, ActionView, false},
		{"unknown module", "payroll.view", "", "", true},
		{"unknown action", "billing.destroy", "", "", true},
		{"missing dot", "billing", "", "", true},
		{"empty action", "billing.", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, a, err := ParsePermission(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tc.input, err)
			}
			if m != tc.module || a != tc.action {
				t.Fatalf("parse %q: got %s.%s", tc.input, m, a)
			}
		})
	}
}

func TestModuleVisible(t *testing.T) {
	if !ModuleVisible(ModuleRoles, RoleSuperAdmin) {
		t.Fatalf("super_admin must see every module")
	}
	if !ModuleVisible(ModuleBilling, RoleAccountant) {
		t.Fatalf("accountant should see billing")
	}
	if ModuleVisible(ModuleRoles, RoleResident) {
		t.Fatalf("resident must not see roles")
	}
	if ModuleVisible(ModuleBilling, "unknown_role") {
		t.Fatalf("unknown role must not see billing")
	}
}

func TestAccessibleModulesIsStableAndSorted(t *testing.T) {
	first := AccessibleModules(RoleStaff)
	second := AccessibleModules(RoleStaff)
	if len(first) != len(second) {
		t.Fatalf("unstable result: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("unstable order at %d: %s vs %s", i, first[i], second[i])
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1] >= first[i] {
			t.Fatalf("not sorted: %s before %s", first[i-1], first[i])
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("catalog invalid: %v", err)
	}
}
