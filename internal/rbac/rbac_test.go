// AngelaMos | 2026
// rbac_test.go

package rbac

import (
	"testing"
)

func TestCan(t *testing.T) {
	tests := []struct {
		name string
		role string
		op   string
		want bool
	}{
		{"super admin lists users", RoleSuperAdmin, OpUserList, true},
		{"admin lists users", RoleAdmin, OpUserList, true},
		{"principal lists users", RolePrincipal, OpUserList, true},
		{"teacher cannot list users", RoleTeacher, OpUserList, false},
		{"student cannot list users", RoleStudent, OpUserList, false},
		{"principal cannot set roles", RolePrincipal, OpUserSetRole, false},
		{"admin sets roles", RoleAdmin, OpUserSetRole, true},
		{"admin reads stats", RoleAdmin, OpSystemStats, true},
		{"accountant cannot read stats", RoleAccountant, OpSystemStats, false},
		{"unknown operation denied", RoleSuperAdmin, "users:nuke", false},
		{"unknown role denied", "root", OpUserList, false},
		{"empty role denied", "", OpUserList, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Can(tt.role, tt.op); got != tt.want {
				t.Errorf("Can(%q, %q) = %v, want %v",
					tt.role, tt.op, got, tt.want)
			}
		})
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range AllRoles {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false, want true", role)
		}
	}

	for _, role := range []string{"", "user", "Superadmin", "SUPER_ADMIN"} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true, want false", role)
		}
	}
}

func TestAssignableAtRegistration(t *testing.T) {
	allowed := map[string]bool{
		RoleTeacher: true,
		RoleStudent: true,
		RoleParent:  true,
	}

	for _, role := range AllRoles {
		got := AssignableAtRegistration(role)
		if got != allowed[role] {
			t.Errorf("AssignableAtRegistration(%q) = %v, want %v",
				role, got, allowed[role])
		}
	}
}

func TestRoles(t *testing.T) {
	roles := Roles(OpUserSetRole)
	if len(roles) != 2 {
		t.Fatalf("Roles(%q) returned %d roles, want 2", OpUserSetRole, len(roles))
	}

	if roles[0] != RoleSuperAdmin || roles[1] != RoleAdmin {
		t.Errorf("Roles(%q) = %v, want [super_admin admin]", OpUserSetRole, roles)
	}

	if got := Roles("users:nuke"); got != nil {
		t.Errorf("Roles for unknown op = %v, want nil", got)
	}
}
