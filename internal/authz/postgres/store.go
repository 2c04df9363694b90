// Package postgres implements the authz store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretide/authz/internal/authz"
	"github.com/caretide/authz/internal/platform/db"
)

// Compile-time interface check.
var _ authz.Store = (*Store)(nil)

// Store provides PostgreSQL backed persistence for the resolution engine.
// Reads load a consistent snapshot; no resolution rules live here.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Roles returns non-deleted roles matching the filter, with permissions and
// member groups attached.
func (s *Store) Roles(ctx context.Context, filter authz.RoleFilter) ([]authz.Role, error) {
	query := `SELECT id, grain, securable_item, name, parent_role_id FROM roles WHERE NOT is_deleted`
	args := []any{}
	if filter.Grain != "" {
		args = append(args, filter.Grain)
		query += fmt.Sprintf(" AND grain = $%d", len(args))
	}
	if filter.SecurableItem != "" {
		args = append(args, filter.SecurableItem)
		query += fmt.Sprintf(" AND securable_item = $%d", len(args))
	}
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += fmt.Sprintf(" AND name = $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("authz/postgres: query roles: %w", err)
	}
	defer rows.Close()

	var roles []authz.Role
	index := make(map[uuid.UUID]int)
	var ids []uuid.UUID
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(&role.ID, &role.Grain, &role.SecurableItem, &role.Name, &role.ParentID); err != nil {
			return nil, fmt.Errorf("authz/postgres: scan role: %w", err)
		}
		index[role.ID] = len(roles)
		ids = append(ids, role.ID)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz/postgres: iterate roles: %w", err)
	}
	if len(roles) == 0 {
		return nil, nil
	}

	if err := s.attachPermissions(ctx, ids, index, roles); err != nil {
		return nil, err
	}
	if err := s.attachGroups(ctx, ids, index, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) attachPermissions(ctx context.Context, ids []uuid.UUID, index map[uuid.UUID]int, roles []authz.Role) error {
	rows, err := s.pool.Query(ctx, `
		SELECT rp.role_id, rp.action, p.id, p.grain, p.securable_item, p.name, p.is_deleted
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE NOT rp.is_deleted AND rp.role_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("authz/postgres: query role permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID uuid.UUID
		var action authz.PermissionAction
		var perm authz.Permission
		if err := rows.Scan(&roleID, &action, &perm.ID, &perm.Grain, &perm.SecurableItem, &perm.Name, &perm.IsDeleted); err != nil {
			return fmt.Errorf("authz/postgres: scan role permission: %w", err)
		}
		perm.Action = action
		i, ok := index[roleID]
		if !ok {
			continue
		}
		if action == authz.ActionDeny {
			roles[i].DeniedPermissions = append(roles[i].DeniedPermissions, perm)
		} else {
			roles[i].Permissions = append(roles[i].Permissions, perm)
		}
	}
	return rows.Err()
}

func (s *Store) attachGroups(ctx context.Context, ids []uuid.UUID, index map[uuid.UUID]int, roles []authz.Role) error {
	rows, err := s.pool.Query(ctx, `
		SELECT gr.role_id, g.name
		FROM group_roles gr
		JOIN groups g ON g.id = gr.group_id
		WHERE NOT gr.is_deleted AND NOT g.is_deleted AND gr.role_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("authz/postgres: query role groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID uuid.UUID
		var group string
		if err := rows.Scan(&roleID, &group); err != nil {
			return fmt.Errorf("authz/postgres: scan role group: %w", err)
		}
		if i, ok := index[roleID]; ok {
			roles[i].Groups = append(roles[i].Groups, group)
		}
	}
	return rows.Err()
}

// Permissions returns non-deleted permissions matching the filter.
func (s *Store) Permissions(ctx context.Context, filter authz.PermissionFilter) ([]authz.Permission, error) {
	query := `SELECT id, grain, securable_item, name FROM permissions WHERE NOT is_deleted`
	args := []any{}
	if filter.Grain != "" {
		args = append(args, filter.Grain)
		query += fmt.Sprintf(" AND grain = $%d", len(args))
	}
	if filter.SecurableItem != "" {
		args = append(args, filter.SecurableItem)
		query += fmt.Sprintf(" AND securable_item = $%d", len(args))
	}
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += fmt.Sprintf(" AND name = $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query+" ORDER BY grain, securable_item, name", args...)
	if err != nil {
		return nil, fmt.Errorf("authz/postgres: query permissions: %w", err)
	}
	defer rows.Close()

	var perms []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Grain, &p.SecurableItem, &p.Name); err != nil {
			return nil, fmt.Errorf("authz/postgres: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GranularPermission loads the override record for a user identity key.
func (s *Store) GranularPermission(ctx context.Context, userID string) (authz.GranularPermission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT grain, securable_item, name, action
		FROM user_permissions
		WHERE user_id = $1`, userID)
	if err != nil {
		return authz.GranularPermission{}, fmt.Errorf("authz/postgres: query user permissions: %w", err)
	}
	defer rows.Close()

	gp := authz.GranularPermission{UserID: userID}
	found := false
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.Grain, &p.SecurableItem, &p.Name, &p.Action); err != nil {
			return authz.GranularPermission{}, fmt.Errorf("authz/postgres: scan user permission: %w", err)
		}
		found = true
		if p.Action == authz.ActionDeny {
			gp.DeniedPermissions = append(gp.DeniedPermissions, p)
		} else {
			gp.AdditionalPermissions = append(gp.AdditionalPermissions, p)
		}
	}
	if err := rows.Err(); err != nil {
		return authz.GranularPermission{}, fmt.Errorf("authz/postgres: iterate user permissions: %w", err)
	}
	if !found {
		return authz.GranularPermission{}, authz.NewNotFoundError("granular permission", userID)
	}
	return gp, nil
}

// SaveGranularPermission replaces the override record in one transaction.
func (s *Store) SaveGranularPermission(ctx context.Context, gp authz.GranularPermission) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, gp.UserID); err != nil {
			return fmt.Errorf("authz/postgres: clear user permissions: %w", err)
		}
		insert := func(perms []authz.Permission, action authz.PermissionAction) error {
			for _, p := range perms {
				_, err := tx.Exec(ctx, `
					INSERT INTO user_permissions (user_id, grain, securable_item, name, action)
					VALUES ($1, $2, $3, $4, $5)`, gp.UserID, p.Grain, p.SecurableItem, p.Name, action)
				if err != nil {
					return fmt.Errorf("authz/postgres: insert user permission: %w", err)
				}
			}
			return nil
		}
		if err := insert(gp.AdditionalPermissions, authz.ActionAllow); err != nil {
			return err
		}
		return insert(gp.DeniedPermissions, authz.ActionDeny)
	})
}

// User returns a user with group memberships, matching subject id
// case-insensitively.
func (s *Store) User(ctx context.Context, subjectID, identityProvider string) (authz.User, error) {
	var user authz.User
	err := s.pool.QueryRow(ctx, `
		SELECT subject_id, identity_provider
		FROM users
		WHERE LOWER(subject_id) = LOWER($1) AND identity_provider = $2 AND NOT is_deleted`,
		subjectID, identityProvider).Scan(&user.SubjectID, &user.IdentityProvider)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.User{}, authz.NewNotFoundError("user", strings.Join([]string{identityProvider, subjectID}, "/"))
		}
		return authz.User{}, fmt.Errorf("authz/postgres: query user: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT g.name
		FROM user_groups ug
		JOIN groups g ON g.id = ug.group_id
		WHERE LOWER(ug.subject_id) = LOWER($1) AND ug.identity_provider = $2
		  AND NOT ug.is_deleted AND NOT g.is_deleted`, subjectID, identityProvider)
	if err != nil {
		return authz.User{}, fmt.Errorf("authz/postgres: query user groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var group string
		if err := rows.Scan(&group); err != nil {
			return authz.User{}, fmt.Errorf("authz/postgres: scan user group: %w", err)
		}
		user.Groups = append(user.Groups, group)
	}
	return user, rows.Err()
}
