// AngelaMos | 2026
// rbac.go

// Package rbac holds the platform role set and the static
// operation-to-role mapping used by the authorization middleware.
package rbac

const (
	RoleSuperAdmin  = "super_admin"
	RoleAdmin       = "admin"
	RolePrincipal   = "principal"
	RoleTeacher     = "teacher"
	RoleAccountant  = "accountant"
	RoleCoordinator = "coordinator"
	RoleStudent     = "student"
	RoleParent      = "parent"
)

// AllRoles is the closed set of valid roles. Order matters only for
// display purposes.
var AllRoles = []string{
	RoleSuperAdmin,
	RoleAdmin,
	RolePrincipal,
	RoleTeacher,
	RoleAccountant,
	RoleCoordinator,
	RoleStudent,
	RoleParent,
}

// registrationRoles are the roles a caller may self-select at signup.
// Privileged roles are only assignable through the admin endpoint.
var registrationRoles = map[string]struct{}{
	RoleTeacher: {},
	RoleStudent: {},
	RoleParent:  {},
}

func ValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

func AssignableAtRegistration(role string) bool {
	_, ok := registrationRoles[role]
	return ok
}

// Operation names for protected endpoints. Every protected route must
// appear in the permissions table below; an unknown operation is denied.
const (
	OpUserList       = "users:list"
	OpUserRead       = "users:read"
	OpUserSetRole    = "users:set_role"
	OpUserDeactivate = "users:deactivate"
	OpSystemStats    = "system:stats"
)

// permissions is the full operation -> allowed-roles mapping. The set is
// exact membership: no role implies another unless listed here.
var permissions = map[string]map[string]struct{}{
	OpUserList:       roleSet(RoleSuperAdmin, RoleAdmin, RolePrincipal),
	OpUserRead:       roleSet(RoleSuperAdmin, RoleAdmin, RolePrincipal),
	OpUserSetRole:    roleSet(RoleSuperAdmin, RoleAdmin),
	OpUserDeactivate: roleSet(RoleSuperAdmin, RoleAdmin),
	OpSystemStats:    roleSet(RoleSuperAdmin, RoleAdmin),
}

// Can reports whether role may perform op. Unknown operations and
// unknown roles are denied.
func Can(role, op string) bool {
	allowed, ok := permissions[op]
	if !ok {
		return false
	}
	_, ok = allowed[role]
	return ok
}

// Roles returns the allowed role set for op, empty for unknown operations.
func Roles(op string) []string {
	allowed, ok := permissions[op]
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(allowed))
	for _, r := range AllRoles {
		if _, member := allowed[r]; member {
			roles = append(roles, r)
		}
	}
	return roles
}

func roleSet(roles ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}
