package memstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/caretide/authz/internal/authz"
)

func TestRolesFilterAndSoftDelete(t *testing.T) {
	store := New()
	store.PutRole(authz.Role{ID: uuid.New(), Grain: "app", SecurableItem: "X", Name: "viewer"})
	store.PutRole(authz.Role{ID: uuid.New(), Grain: "app", SecurableItem: "Y", Name: "viewer"})
	store.PutRole(authz.Role{ID: uuid.New(), Grain: "app", SecurableItem: "X", Name: "gone", IsDeleted: true})

	roles, err := store.Roles(context.Background(), authz.RoleFilter{Grain: "app", SecurableItem: "X"})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "viewer", roles[0].Name)

	roles, err = store.Roles(context.Background(), authz.RoleFilter{})
	require.NoError(t, err)
	require.Len(t, roles, 2)
}

func TestPermissionsFilter(t *testing.T) {
	store := New()
	store.PutPermission(authz.Permission{ID: uuid.New(), Grain: "app", SecurableItem: "X", Name: "view"})
	store.PutPermission(authz.Permission{ID: uuid.New(), Grain: "patient", SecurableItem: "P", Name: "view"})

	perms, err := store.Permissions(context.Background(), authz.PermissionFilter{Grain: "patient"})
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.Equal(t, "patient/P.view", perms[0].String())
}

func TestGranularPermissionRoundTrip(t *testing.T) {
	store := New()

	_, err := store.GranularPermission(context.Background(), "u:idp")
	require.True(t, authz.IsNotFound(err))

	gp := authz.GranularPermission{
		UserID: "u:idp",
		AdditionalPermissions: []authz.Permission{
			{ID: uuid.New(), Grain: "app", SecurableItem: "X", Name: "view", Action: authz.ActionAllow},
		},
	}
	require.NoError(t, store.SaveGranularPermission(context.Background(), gp))

	got, err := store.GranularPermission(context.Background(), "u:idp")
	require.NoError(t, err)
	require.Equal(t, gp, got)
}

func TestUserLookupIsCaseInsensitive(t *testing.T) {
	store := New()
	store.PutUser(authz.User{SubjectID: "Alice", IdentityProvider: "windows"})

	user, err := store.User(context.Background(), "alice", "windows")
	require.NoError(t, err)
	require.Equal(t, "Alice", user.SubjectID)

	_, err = store.User(context.Background(), "alice", "aad")
	require.True(t, authz.IsNotFound(err))
}

func TestDeletedUserIsNotFound(t *testing.T) {
	store := New()
	store.PutUser(authz.User{SubjectID: "bob", IdentityProvider: "windows", IsDeleted: true})

	_, err := store.User(context.Background(), "bob", "windows")
	require.True(t, authz.IsNotFound(err))
}
