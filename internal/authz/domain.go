// Package authz implements grain/securable-item scoped permission
// resolution: role hierarchy traversal, allow/deny merge semantics and
// per-user granular permission overlays.
package authz

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// PermissionAction distinguishes allow records from deny records.
type PermissionAction string

const (
	// ActionAllow grants the permission.
	ActionAllow PermissionAction = "allow"
	// ActionDeny revokes the permission.
	ActionDeny PermissionAction = "deny"
)

// PermissionKey identifies a permission for set operations. Action is
// deliberately not part of the key: an allow record and a deny record for
// the same (grain, securableItem, name) conflict rather than coexist.
type PermissionKey struct {
	Grain         string
	SecurableItem string
	Name          string
}

// String returns the canonical permission form "{grain}/{securableItem}.{name}".
func (k PermissionKey) String() string {
	return fmt.Sprintf("%s/%s.%s", k.Grain, k.SecurableItem, k.Name)
}

// Permission is an atomic capability scoped to a grain and securable item.
type Permission struct {
	ID            uuid.UUID
	Grain         string
	SecurableItem string
	Name          string
	Action        PermissionAction
	IsDeleted     bool
}

// Key returns the identity key used for set algebra.
func (p Permission) Key() PermissionKey {
	return PermissionKey{Grain: p.Grain, SecurableItem: p.SecurableItem, Name: p.Name}
}

// String returns the canonical permission form.
func (p Permission) String() string {
	return p.Key().String()
}

// Role bundles granted and denied permissions within a grain/securable-item
// scope. Roles form a tree through ParentID; a role inherits the grants of
// its ancestors.
type Role struct {
	ID                uuid.UUID
	Grain             string
	SecurableItem     string
	Name              string
	Permissions       []Permission
	DeniedPermissions []Permission
	ParentID          *uuid.UUID
	ChildIDs          []uuid.UUID
	Groups            []string
	IsDeleted         bool
}

// MemberOfAny reports whether the role is attached to at least one of the
// given groups.
func (r Role) MemberOfAny(groups map[string]struct{}) bool {
	for _, g := range r.Groups {
		if _, ok := groups[g]; ok {
			return true
		}
	}
	return false
}

// Group is a named collection of users and roles, typically sourced from an
// external directory.
type Group struct {
	ID        uuid.UUID
	Name      string
	Source    string
	RoleIDs   []uuid.UUID
	ParentID  *uuid.UUID
	IsDeleted bool
}

// User is identified by the pair (subjectID, identityProvider). SubjectID
// comparison is case-insensitive.
type User struct {
	SubjectID        string
	IdentityProvider string
	Groups           []string
	RoleIDs          []uuid.UUID
	IsDeleted        bool
}

// Key returns the user's canonical identity key.
func (u User) Key() string {
	return UserKey(u.SubjectID, u.IdentityProvider)
}

var foldCaser = cases.Fold()

// UserKey builds the canonical identity key for a user. The subject id is
// case-folded so that lookups match regardless of the casing the identity
// provider reports.
func UserKey(subjectID, identityProvider string) string {
	return foldCaser.String(subjectID) + ":" + identityProvider
}

// GranularPermission holds a user's per-principal overrides: additional
// permissions granted outside any role, and explicit denials that trump
// every role-derived grant.
type GranularPermission struct {
	UserID                string
	AdditionalPermissions []Permission
	DeniedPermissions     []Permission
}

// keySet indexes permissions by identity key, keeping the first record seen
// for each key.
func keySet(perms []Permission) map[PermissionKey]Permission {
	set := make(map[PermissionKey]Permission, len(perms))
	for _, p := range perms {
		if _, ok := set[p.Key()]; !ok {
			set[p.Key()] = p
		}
	}
	return set
}

// intersectKeys returns the members of a whose key also appears in b,
// preserving a's order and collapsing duplicates.
func intersectKeys(a, b []Permission) []Permission {
	bKeys := keySet(b)
	seen := make(map[PermissionKey]struct{}, len(a))
	var out []Permission
	for _, p := range a {
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		if _, ok := bKeys[p.Key()]; ok {
			seen[p.Key()] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// subtractKeys returns the members of a whose key appears in none of the
// subtrahend sets, preserving a's order and collapsing duplicates.
func subtractKeys(a []Permission, subtrahends ...[]Permission) []Permission {
	exclude := make(map[PermissionKey]struct{})
	for _, sub := range subtrahends {
		for _, p := range sub {
			exclude[p.Key()] = struct{}{}
		}
	}
	seen := make(map[PermissionKey]struct{}, len(a))
	var out []Permission
	for _, p := range a {
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		if _, ok := exclude[p.Key()]; ok {
			continue
		}
		seen[p.Key()] = struct{}{}
		out = append(out, p)
	}
	return out
}
