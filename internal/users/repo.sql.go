package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, subjectID, identityProvider string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (subject_id, identity_provider)
		VALUES ($1, $2)
		RETURNING subject_id, identity_provider, created_at`,
		subjectID, identityProvider).
		Scan(&user.SubjectID, &user.IdentityProvider, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, shared.ErrDuplicate
		}
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return user, nil
}

// GetUser returns a user with group memberships.
func (r *Repository) GetUser(ctx context.Context, subjectID, identityProvider string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT subject_id, identity_provider, created_at
		FROM users
		WHERE LOWER(subject_id) = LOWER($1) AND identity_provider = $2 AND NOT is_deleted`,
		subjectID, identityProvider).
		Scan(&user.SubjectID, &user.IdentityProvider, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT g.name
		FROM user_groups ug
		JOIN groups g ON g.id = ug.group_id
		WHERE LOWER(ug.subject_id) = LOWER($1) AND ug.identity_provider = $2
		  AND NOT ug.is_deleted AND NOT g.is_deleted`, subjectID, identityProvider)
	if err != nil {
		return User{}, fmt.Errorf("users: get groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return User{}, fmt.Errorf("users: scan group: %w", err)
		}
		user.Groups = append(user.Groups, name)
	}
	return user, rows.Err()
}

// DeleteUser soft-deletes a user.
func (r *Repository) DeleteUser(ctx context.Context, subjectID, identityProvider string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET is_deleted = TRUE
		WHERE LOWER(subject_id) = LOWER($1) AND identity_provider = $2 AND NOT is_deleted`,
		subjectID, identityProvider)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateGroup inserts a group.
func (r *Repository) CreateGroup(ctx context.Context, name, source string) (Group, error) {
	var group Group
	err := r.pool.QueryRow(ctx, `
		INSERT INTO groups (id, name, source)
		VALUES ($1, $2, $3)
		RETURNING id, name, source, created_at`,
		uuid.New(), name, source).
		Scan(&group.ID, &group.Name, &group.Source, &group.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Group{}, shared.ErrDuplicate
		}
		return Group{}, fmt.Errorf("users: create group: %w", err)
	}
	return group, nil
}

// GetGroupByName returns a non-deleted group.
func (r *Repository) GetGroupByName(ctx context.Context, name string) (Group, error) {
	var group Group
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, source, created_at FROM groups WHERE name = $1 AND NOT is_deleted`, name).
		Scan(&group.ID, &group.Name, &group.Source, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, fmt.Errorf("users: get group: %w", err)
	}
	return group, nil
}

// AddUserToGroup links a user to a group.
func (r *Repository) AddUserToGroup(ctx context.Context, subjectID, identityProvider string, groupID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_groups (subject_id, identity_provider, group_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id, identity_provider, group_id) DO UPDATE SET is_deleted = FALSE`,
		subjectID, identityProvider, groupID)
	if err != nil {
		return fmt.Errorf("users: add to group: %w", err)
	}
	return nil
}

// RemoveUserFromGroup soft-deletes the membership link.
func (r *Repository) RemoveUserFromGroup(ctx context.Context, subjectID, identityProvider string, groupID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_groups SET is_deleted = TRUE
		WHERE LOWER(subject_id) = LOWER($1) AND identity_provider = $2 AND group_id = $3 AND NOT is_deleted`,
		subjectID, identityProvider, groupID)
	if err != nil {
		return fmt.Errorf("users: remove from group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddRoleToGroup links a role to a group.
func (r *Repository) AddRoleToGroup(ctx context.Context, groupID, roleID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_roles (group_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, role_id) DO UPDATE SET is_deleted = FALSE`,
		groupID, roleID)
	if err != nil {
		return fmt.Errorf("users: add role to group: %w", err)
	}
	return nil
}

// RemoveRoleFromGroup soft-deletes the role link.
func (r *Repository) RemoveRoleFromGroup(ctx context.Context, groupID, roleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE group_roles SET is_deleted = TRUE
		WHERE group_id = $1 AND role_id = $2 AND NOT is_deleted`, groupID, roleID)
	if err != nil {
		return fmt.Errorf("users: remove role from group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
