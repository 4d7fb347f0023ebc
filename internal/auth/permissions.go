package auth

// Permission names a class of API operation.
type Permission string

const (
	// PermRead covers status, settings, cached messages, activity and the feed.
	PermRead Permission = "bridge:read"

	// PermControl covers every state-changing operation.
	PermControl Permission = "bridge:control"
)

// rolePermissions is the static role to permission mapping.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermRead},
	RoleOperator: {PermRead, PermControl},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
