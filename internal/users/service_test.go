package users

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/caretide/authz/internal/shared"
)

type membership struct {
	userKey string
	groupID uuid.UUID
}

type fakeRepo struct {
	users       map[string]User
	groups      map[string]Group
	memberships []membership
	groupRoles  map[uuid.UUID][]uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:      make(map[string]User),
		groups:     make(map[string]Group),
		groupRoles: make(map[uuid.UUID][]uuid.UUID),
	}
}

func userKey(subjectID, identityProvider string) string {
	return strings.ToLower(subjectID) + ":" + identityProvider
}

func (r *fakeRepo) CreateUser(_ context.Context, subjectID, identityProvider string) (User, error) {
	key := userKey(subjectID, identityProvider)
	if _, ok := r.users[key]; ok {
		return User{}, shared.ErrDuplicate
	}
	user := User{SubjectID: subjectID, IdentityProvider: identityProvider}
	r.users[key] = user
	return user, nil
}

func (r *fakeRepo) GetUser(_ context.Context, subjectID, identityProvider string) (User, error) {
	user, ok := r.users[userKey(subjectID, identityProvider)]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return user, nil
}

func (r *fakeRepo) DeleteUser(_ context.Context, subjectID, identityProvider string) error {
	key := userKey(subjectID, identityProvider)
	if _, ok := r.users[key]; !ok {
		return shared.ErrNotFound
	}
	delete(r.users, key)
	return nil
}

func (r *fakeRepo) CreateGroup(_ context.Context, name, source string) (Group, error) {
	if _, ok := r.groups[name]; ok {
		return Group{}, shared.ErrDuplicate
	}
	group := Group{ID: uuid.New(), Name: name, Source: source}
	r.groups[name] = group
	return group, nil
}

func (r *fakeRepo) GetGroupByName(_ context.Context, name string) (Group, error) {
	group, ok := r.groups[name]
	if !ok {
		return Group{}, shared.ErrNotFound
	}
	return group, nil
}

func (r *fakeRepo) AddUserToGroup(_ context.Context, subjectID, identityProvider string, groupID uuid.UUID) error {
	r.memberships = append(r.memberships, membership{userKey: userKey(subjectID, identityProvider), groupID: groupID})
	return nil
}

func (r *fakeRepo) RemoveUserFromGroup(_ context.Context, subjectID, identityProvider string, groupID uuid.UUID) error {
	key := userKey(subjectID, identityProvider)
	for i, m := range r.memberships {
		if m.userKey == key && m.groupID == groupID {
			r.memberships = append(r.memberships[:i], r.memberships[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *fakeRepo) AddRoleToGroup(_ context.Context, groupID, roleID uuid.UUID) error {
	r.groupRoles[groupID] = append(r.groupRoles[groupID], roleID)
	return nil
}

func (r *fakeRepo) RemoveRoleFromGroup(_ context.Context, groupID, roleID uuid.UUID) error {
	roles := r.groupRoles[groupID]
	for i, id := range roles {
		if id == roleID {
			r.groupRoles[groupID] = append(roles[:i], roles[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func newTestService(repo UserRepository) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateUserValidatesIdentity(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.CreateUser(context.Background(), " ", "windows")
	require.Error(t, err)
	_, err = svc.CreateUser(context.Background(), "alice", "")
	require.Error(t, err)
}

func TestCreateUserDuplicateIdentity(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.CreateUser(context.Background(), "alice", "windows")
	require.NoError(t, err)

	// Subject ids compare case-insensitively, so ALICE is the same identity.
	_, err = svc.CreateUser(context.Background(), "ALICE", "windows")
	require.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = svc.CreateUser(context.Background(), "alice", "aad")
	require.NoError(t, err)
}

func TestAddUserToGroupByName(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.CreateUser(context.Background(), "alice", "windows")
	require.NoError(t, err)
	_, err = svc.CreateGroup(context.Background(), "editors", "")
	require.NoError(t, err)

	require.NoError(t, svc.AddUserToGroup(context.Background(), "alice", "windows", "editors"))
	require.Len(t, repo.memberships, 1)

	require.ErrorIs(t, svc.AddUserToGroup(context.Background(), "alice", "windows", "ghosts"), shared.ErrNotFound)
	require.ErrorIs(t, svc.AddUserToGroup(context.Background(), "bob", "windows", "editors"), shared.ErrNotFound)
}

func TestRemoveUserFromGroup(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.CreateUser(context.Background(), "alice", "windows")
	require.NoError(t, err)
	_, err = svc.CreateGroup(context.Background(), "editors", "")
	require.NoError(t, err)
	require.NoError(t, svc.AddUserToGroup(context.Background(), "alice", "windows", "editors"))

	require.NoError(t, svc.RemoveUserFromGroup(context.Background(), "alice", "windows", "editors"))
	require.Empty(t, repo.memberships)
}

func TestCreateGroupDefaultsSource(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	group, err := svc.CreateGroup(context.Background(), "editors", "")
	require.NoError(t, err)
	require.Equal(t, "custom", group.Source)

	_, err = svc.CreateGroup(context.Background(), " ", "")
	require.Error(t, err)
}

func TestGroupRoleAssignment(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	group, err := svc.CreateGroup(context.Background(), "editors", "directory")
	require.NoError(t, err)

	roleID := uuid.New()
	require.NoError(t, svc.AddRoleToGroup(context.Background(), "editors", roleID))
	require.Equal(t, []uuid.UUID{roleID}, repo.groupRoles[group.ID])

	require.NoError(t, svc.RemoveRoleFromGroup(context.Background(), "editors", roleID))
	require.Empty(t, repo.groupRoles[group.ID])

	require.ErrorIs(t, svc.AddRoleToGroup(context.Background(), "ghosts", roleID), shared.ErrNotFound)
}
