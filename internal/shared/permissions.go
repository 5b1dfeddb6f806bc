package shared

// Core platform permissions.
const (
	PermUsersList   = "users.list"
	PermUsersUpdate = "users.update"
	PermUsersDelete = "users.delete"

	PermRolesView       = "roles.view"
	PermPermissionsView = "permissions.view"
)

// CoreScopes lists all permissions enforced by the platform.
func CoreScopes() []string {
	return []string{
		PermUsersList,
		PermUsersUpdate,
		PermUsersDelete,
		PermRolesView,
		PermPermissionsView,
	}
}
