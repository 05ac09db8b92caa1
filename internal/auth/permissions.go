package auth

// Permission is a named capability checked by the API.
type Permission string

const (
	PermLightRead    Permission = "light:read"
	PermLightOperate Permission = "light:operate"
	PermBridgeManage Permission = "bridge:manage"
	PermAuditRead    Permission = "audit:read"
)

// rolePermissions is the complete authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermLightRead,
	},
	RoleOperator: {
		PermLightRead,
		PermLightOperate,
	},
	RoleAdmin: {
		PermLightRead,
		PermLightOperate,
		PermBridgeManage,
		PermAuditRead,
	},
}

// HasPermission reports whether role grants perm. Unknown roles have none.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role,
// or nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	return append([]Permission(nil), perms...)
}
