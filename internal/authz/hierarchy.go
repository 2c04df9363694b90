package authz

import "github.com/google/uuid"

// Ancestors returns the ancestor chain of role, starting with its immediate
// parent and walking upward until a role has no parent or the parent is not
// present in rolesInScope. rolesInScope must already be filtered to the same
// (grain, securableItem) scope as role; the walk never crosses scopes.
//
// Parent links form a tree by contract. If corrupted data introduces a
// cycle the walk stops with a CycleError instead of looping forever.
func Ancestors(role Role, rolesInScope []Role) ([]Role, error) {
	byID := make(map[uuid.UUID]Role, len(rolesInScope))
	for _, r := range rolesInScope {
		byID[r.ID] = r
	}

	visited := map[uuid.UUID]struct{}{role.ID: {}}
	var chain []Role
	current := role
	for current.ParentID != nil {
		parent, ok := byID[*current.ParentID]
		if !ok {
			break
		}
		if _, seen := visited[parent.ID]; seen {
			return nil, &CycleError{RoleID: parent.ID}
		}
		visited[parent.ID] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}
