package clients

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

// CreateClient inserts a client together with its top-level securable item.
func (r *Repository) CreateClient(ctx context.Context, client Client) (Client, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO clients (id, name, secret_hash) VALUES ($1, $2, $3)`,
			client.ID, client.Name, client.SecretHash)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return shared.ErrDuplicate
			}
			return fmt.Errorf("clients: insert: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO securable_items (id, name, client_owner, parent_id)
			VALUES ($1, $2, $3, NULL)`,
			client.TopLevel.ID, client.TopLevel.Name, client.TopLevel.ClientOwner)
		if err != nil {
			return fmt.Errorf("clients: insert top-level item: %w", err)
		}
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return client, nil
}

// GetClient returns a non-deleted client with its securable-item tree.
func (r *Repository) GetClient(ctx context.Context, id string) (Client, error) {
	var client Client
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, secret_hash, created_at FROM clients WHERE id = $1 AND NOT is_deleted`, id).
		Scan(&client.ID, &client.Name, &client.SecretHash, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, shared.ErrNotFound
		}
		return Client{}, fmt.Errorf("clients: get: %w", err)
	}

	tree, err := r.loadItemTree(ctx, id)
	if err != nil {
		return Client{}, err
	}
	client.TopLevel = tree
	return client, nil
}

// loadItemTree loads every securable item owned by the client and links
// them into a tree by parent id. The root is the item with no parent.
func (r *Repository) loadItemTree(ctx context.Context, clientID string) (*SecurableItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, client_owner, parent_id
		FROM securable_items
		WHERE client_owner = $1 AND NOT is_deleted`, clientID)
	if err != nil {
		return nil, fmt.Errorf("clients: query items: %w", err)
	}
	defer rows.Close()

	nodes := make(map[uuid.UUID]*SecurableItem)
	parents := make(map[uuid.UUID]*uuid.UUID)
	var rootID *uuid.UUID
	for rows.Next() {
		var item SecurableItem
		var parentID *uuid.UUID
		if err := rows.Scan(&item.ID, &item.Name, &item.ClientOwner, &parentID); err != nil {
			return nil, fmt.Errorf("clients: scan item: %w", err)
		}
		node := item
		nodes[item.ID] = &node
		parents[item.ID] = parentID
		if parentID == nil {
			id := item.ID
			rootID = &id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clients: iterate items: %w", err)
	}
	if rootID == nil {
		return nil, nil
	}

	for id, parentID := range parents {
		if parentID == nil {
			continue
		}
		if parent, ok := nodes[*parentID]; ok {
			parent.Children = append(parent.Children, nodes[id])
		}
	}
	return nodes[*rootID], nil
}

// DeleteClient soft-deletes a client and its securable items.
func (r *Repository) DeleteClient(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE clients SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, id)
		if err != nil {
			return fmt.Errorf("clients: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `UPDATE securable_items SET is_deleted = TRUE WHERE client_owner = $1`, id); err != nil {
			return fmt.Errorf("clients: delete items: %w", err)
		}
		return nil
	})
}

// GetSecurableItemOwner returns the owning client id for a securable item
// name.
func (r *Repository) GetSecurableItemOwner(ctx context.Context, name string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `
		SELECT client_owner FROM securable_items WHERE name = $1 AND NOT is_deleted LIMIT 1`, name).
		Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("clients: get item owner: %w", err)
	}
	return owner, nil
}
