package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretide/authz/internal/platform/db"
	"github.com/caretide/authz/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns non-deleted roles, optionally scoped.
func (r *Repository) ListRoles(ctx context.Context, grain, securableItem string, page shared.Pagination) ([]Role, error) {
	query := `SELECT id, grain, securable_item, name, parent_role_id, created_at, updated_at FROM roles WHERE NOT is_deleted`
	args := []any{}
	if grain != "" {
		args = append(args, grain)
		query += fmt.Sprintf(" AND grain = $%d", len(args))
	}
	if securableItem != "" {
		args = append(args, securableItem)
		query += fmt.Sprintf(" AND securable_item = $%d", len(args))
	}
	args = append(args, page.PerPage, page.Offset())
	query += fmt.Sprintf(" ORDER BY grain, securable_item, name LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Grain, &role.SecurableItem, &role.Name, &role.ParentID, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// GetRole returns a non-deleted role by id.
func (r *Repository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, grain, securable_item, name, parent_role_id, created_at, updated_at
		FROM roles WHERE id = $1 AND NOT is_deleted`, id).
		Scan(&role.ID, &role.Grain, &role.SecurableItem, &role.Name, &role.ParentID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("roles: get: %w", err)
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, grain, securableItem, name string, parentID *uuid.UUID) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (id, grain, securable_item, name, parent_role_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, grain, securable_item, name, parent_role_id, created_at, updated_at`,
		uuid.New(), grain, securableItem, name, parentID).
		Scan(&role.ID, &role.Grain, &role.SecurableItem, &role.Name, &role.ParentID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, fmt.Errorf("roles: create: %w", err)
	}
	return role, nil
}

// DeleteRole soft-deletes a role together with its permission and group
// links in one transaction, so no dangling link can reach the resolver.
func (r *Repository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
		if err != nil {
			return fmt.Errorf("roles: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `UPDATE role_permissions SET is_deleted = TRUE WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("roles: delete permission links: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE group_roles SET is_deleted = TRUE WHERE role_id = $1`, id); err != nil {
			return fmt.Errorf("roles: delete group links: %w", err)
		}
		return nil
	})
}

// AttachPermissions links catalog permissions to a role under one action.
func (r *Repository) AttachPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, action string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, pid := range permissionIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id, action)
				VALUES ($1, $2, $3)
				ON CONFLICT (role_id, permission_id, action) DO UPDATE SET is_deleted = FALSE`,
				roleID, pid, action)
			if err != nil {
				return fmt.Errorf("roles: attach permission: %w", err)
			}
		}
		return nil
	})
}

// DetachPermissions soft-deletes permission links from a role.
func (r *Repository) DetachPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE role_permissions SET is_deleted = TRUE
		WHERE role_id = $1 AND permission_id = ANY($2)`, roleID, permissionIDs)
	if err != nil {
		return fmt.Errorf("roles: detach permissions: %w", err)
	}
	return nil
}

// CreatePermission inserts a catalog permission.
func (r *Repository) CreatePermission(ctx context.Context, grain, securableItem, name string) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (id, grain, securable_item, name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, grain, securable_item, name, created_at`,
		uuid.New(), grain, securableItem, name).
		Scan(&perm.ID, &perm.Grain, &perm.SecurableItem, &perm.Name, &perm.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Permission{}, shared.ErrDuplicate
		}
		return Permission{}, fmt.Errorf("roles: create permission: %w", err)
	}
	return perm, nil
}

// GetPermission returns a non-deleted catalog permission by id.
func (r *Repository) GetPermission(ctx context.Context, id uuid.UUID) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `
		SELECT id, grain, securable_item, name, created_at
		FROM permissions WHERE id = $1 AND NOT is_deleted`, id).
		Scan(&perm.ID, &perm.Grain, &perm.SecurableItem, &perm.Name, &perm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, fmt.Errorf("roles: get permission: %w", err)
	}
	return perm, nil
}

// DeletePermission soft-deletes a catalog permission and every role link
// that references it, in one transaction.
func (r *Repository) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE permissions SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, id)
		if err != nil {
			return fmt.Errorf("roles: delete permission: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `UPDATE role_permissions SET is_deleted = TRUE WHERE permission_id = $1`, id); err != nil {
			return fmt.Errorf("roles: delete permission links: %w", err)
		}
		return nil
	})
}
