package authz

import "context"

// RoleFilter narrows role lookups. Empty fields match anything.
type RoleFilter struct {
	Grain         string
	SecurableItem string
	Name          string
}

// PermissionFilter narrows permission lookups. Empty fields match anything.
type PermissionFilter struct {
	Grain         string
	SecurableItem string
	Name          string
}

// Store supplies raw authorization data. Implementations persist and
// retrieve records without applying any resolution rules; soft-deleted
// roles and permissions are excluded from every read.
type Store interface {
	// Roles returns non-deleted roles matching the filter, with granted
	// and denied permissions and member group names populated.
	Roles(ctx context.Context, filter RoleFilter) ([]Role, error)

	// Permissions returns non-deleted permissions matching the filter.
	Permissions(ctx context.Context, filter PermissionFilter) ([]Permission, error)

	// GranularPermission returns the per-user override record for the
	// given user identity key. Returns NotFoundError when absent.
	GranularPermission(ctx context.Context, userID string) (GranularPermission, error)

	// SaveGranularPermission replaces the per-user override record.
	SaveGranularPermission(ctx context.Context, gp GranularPermission) error

	// User returns a user by subject id and identity provider. Subject id
	// matching is case-insensitive. Returns NotFoundError when absent.
	User(ctx context.Context, subjectID, identityProvider string) (User, error)
}
