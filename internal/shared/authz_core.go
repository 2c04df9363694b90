package shared

// Permissions guarding this service's own admin API, expressed in the same
// canonical form the engine resolves. The service is registered under the
// "authz" grain with one securable item per managed resource.
const (
	PermRolesManage       = "authz/roles.manage"
	PermPermissionsManage = "authz/permissions.manage"
	PermUsersManage       = "authz/users.manage"
	PermClientsManage     = "authz/clients.manage"
	PermGranularWrite     = "authz/granular.write"
)

// AdminScopes lists every permission the admin surface checks.
func AdminScopes() []string {
	return []string{
		PermRolesManage,
		PermPermissionsManage,
		PermUsersManage,
		PermClientsManage,
		PermGranularWrite,
	}
}
