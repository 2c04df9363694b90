// Package memstore provides an in-memory implementation of the authz store.
// It backs unit tests and the standalone development mode.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/caretide/authz/internal/authz"
)

// Compile-time interface check.
var _ authz.Store = (*Store)(nil)

// Store is a thread-safe in-memory authorization store.
type Store struct {
	mu       sync.RWMutex
	roles    map[uuid.UUID]authz.Role
	perms    map[uuid.UUID]authz.Permission
	granular map[string]authz.GranularPermission
	users    map[string]authz.User
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		roles:    make(map[uuid.UUID]authz.Role),
		perms:    make(map[uuid.UUID]authz.Permission),
		granular: make(map[string]authz.GranularPermission),
		users:    make(map[string]authz.User),
	}
}

// PutRole inserts or replaces a role.
func (s *Store) PutRole(role authz.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = role
}

// PutPermission inserts or replaces a permission.
func (s *Store) PutPermission(perm authz.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms[perm.ID] = perm
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(user authz.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Key()] = user
}

// Roles returns non-deleted roles matching the filter.
func (s *Store) Roles(_ context.Context, filter authz.RoleFilter) ([]authz.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.Role
	for _, role := range s.roles {
		if role.IsDeleted {
			continue
		}
		if filter.Grain != "" && role.Grain != filter.Grain {
			continue
		}
		if filter.SecurableItem != "" && role.SecurableItem != filter.SecurableItem {
			continue
		}
		if filter.Name != "" && role.Name != filter.Name {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

// Permissions returns non-deleted permissions matching the filter.
func (s *Store) Permissions(_ context.Context, filter authz.PermissionFilter) ([]authz.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authz.Permission
	for _, perm := range s.perms {
		if perm.IsDeleted {
			continue
		}
		if filter.Grain != "" && perm.Grain != filter.Grain {
			continue
		}
		if filter.SecurableItem != "" && perm.SecurableItem != filter.SecurableItem {
			continue
		}
		if filter.Name != "" && perm.Name != filter.Name {
			continue
		}
		out = append(out, perm)
	}
	return out, nil
}

// GranularPermission returns the override record for a user identity key.
func (s *Store) GranularPermission(_ context.Context, userID string) (authz.GranularPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gp, ok := s.granular[userID]
	if !ok {
		return authz.GranularPermission{}, authz.NewNotFoundError("granular permission", userID)
	}
	return gp, nil
}

// SaveGranularPermission replaces the override record for a user.
func (s *Store) SaveGranularPermission(_ context.Context, gp authz.GranularPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granular[gp.UserID] = gp
	return nil
}

// User returns a user by identity, matching the subject id case-insensitively.
func (s *Store) User(_ context.Context, subjectID, identityProvider string) (authz.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[authz.UserKey(subjectID, identityProvider)]
	if !ok || user.IsDeleted {
		return authz.User{}, authz.NewNotFoundError("user", strings.Join([]string{identityProvider, subjectID}, "/"))
	}
	return user, nil
}
