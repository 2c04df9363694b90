package authz

import (
	"context"
	"fmt"
	"sort"
)

// Resolver computes effective permission sets from role and granular
// permission data. Resolution is a pure read over a consistent snapshot
// supplied by the store; it holds no locks and is safe for any number of
// concurrent callers.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// PermissionsForGroups returns the canonical permission strings granted
// through role membership of the given groups, optionally scoped to a grain
// and securable item (empty string = unscoped).
//
// A role contributes its own granted permissions plus those of its
// ancestors. Denied permissions act as a blacklist: a deny anywhere in the
// chain permanently excludes that permission from the result, no matter how
// many roles grant it.
func (r *Resolver) PermissionsForGroups(ctx context.Context, groupNames []string, grain, securableItem string) ([]string, error) {
	roles, err := r.store.Roles(ctx, RoleFilter{Grain: grain, SecurableItem: securableItem})
	if err != nil {
		return nil, fmt.Errorf("authz: fetch roles: %w", err)
	}

	groups := make(map[string]struct{}, len(groupNames))
	for _, g := range groupNames {
		groups[g] = struct{}{}
	}

	granted := make(map[string]struct{})
	denied := make(map[string]struct{})

	for _, role := range roles {
		if role.IsDeleted || !role.MemberOfAny(groups) {
			continue
		}
		collectRolePermissions(role, grain, securableItem, granted, denied)

		ancestors, err := Ancestors(role, roles)
		if err != nil {
			return nil, err
		}
		for _, ancestor := range ancestors {
			collectRolePermissions(ancestor, grain, securableItem, granted, denied)
		}
	}

	return sortedDifference(granted, denied), nil
}

// PermissionsForUser returns the canonical permission strings effective for
// a user: role-derived permissions for the given groups, plus the user's
// additional granular grants, minus the user's granular denials. A granular
// deny wins over every grant because it is subtracted last.
//
// A missing granular record is not an error at this layer; it simply
// contributes empty sets.
func (r *Resolver) PermissionsForUser(ctx context.Context, userID string, groupNames []string, grain, securableItem string) ([]string, error) {
	rolePerms, err := r.PermissionsForGroups(ctx, groupNames, grain, securableItem)
	if err != nil {
		return nil, err
	}

	granted := make(map[string]struct{}, len(rolePerms))
	for _, p := range rolePerms {
		granted[p] = struct{}{}
	}
	denied := make(map[string]struct{})

	gp, err := r.store.GranularPermission(ctx, userID)
	if err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("authz: fetch granular permissions: %w", err)
	}
	for _, p := range gp.AdditionalPermissions {
		granted[p.String()] = struct{}{}
	}
	for _, p := range gp.DeniedPermissions {
		denied[p.String()] = struct{}{}
	}

	return sortedDifference(granted, denied), nil
}

// collectRolePermissions merges one role's contribution into the running
// sets. Granted permissions are filtered by scope and soft-delete status;
// denied permissions apply unconditionally.
func collectRolePermissions(role Role, grain, securableItem string, granted, denied map[string]struct{}) {
	for _, p := range role.Permissions {
		if p.IsDeleted {
			continue
		}
		if grain != "" && p.Grain != grain {
			continue
		}
		if securableItem != "" && p.SecurableItem != securableItem {
			continue
		}
		granted[p.String()] = struct{}{}
	}
	for _, p := range role.DeniedPermissions {
		denied[p.String()] = struct{}{}
	}
}

// sortedDifference returns granted \ denied as a sorted slice. The contract
// is set semantics; sorting just keeps output deterministic for callers and
// tests.
func sortedDifference(granted, denied map[string]struct{}) []string {
	out := make([]string, 0, len(granted))
	for p := range granted {
		if _, ok := denied[p]; ok {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
