package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/caretide/authz/internal/shared"
)

// ClientRepository is the persistence surface the service needs.
type ClientRepository interface {
	CreateClient(ctx context.Context, client Client) (Client, error)
	GetClient(ctx context.Context, id string) (Client, error)
	DeleteClient(ctx context.Context, id string) error
	GetSecurableItemOwner(ctx context.Context, name string) (string, error)
}

// Service orchestrates client registration and ownership checks.
type Service struct {
	repo   ClientRepository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo ClientRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RegisterClient creates a client with a freshly generated secret and a
// top-level securable item named after the client id. The plaintext secret
// is returned exactly once; only its bcrypt hash is stored.
func (s *Service) RegisterClient(ctx context.Context, id, name string) (Client, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Client{}, "", errors.New("clients: client id required")
	}
	if name == "" {
		name = id
	}

	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Client{}, "", fmt.Errorf("clients: hash secret: %w", err)
	}

	client := Client{
		ID:         id,
		Name:       name,
		SecretHash: string(hash),
		TopLevel: &SecurableItem{
			ID:          uuid.New(),
			Name:        id,
			ClientOwner: id,
		},
	}
	created, err := s.repo.CreateClient(ctx, client)
	if err != nil {
		return Client{}, "", err
	}
	return created, secret, nil
}

// GetClient fetches a client with its securable-item tree.
func (s *Service) GetClient(ctx context.Context, id string) (Client, error) {
	return s.repo.GetClient(ctx, id)
}

// DeleteClient soft-deletes a client.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	return s.repo.DeleteClient(ctx, id)
}

// VerifySecret checks a client credential against the stored hash.
func (s *Service) VerifySecret(ctx context.Context, id, secret string) error {
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) != nil {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// OwnsItem reports whether the client owns the securable item, either as
// the item's direct owner or through its securable-item tree. Top-level
// grains grant ownership when the requested item is the client's own
// top-level item.
func (s *Service) OwnsItem(ctx context.Context, clientID, grain, securableItem string) (bool, error) {
	if clientID == "" {
		return false, nil
	}

	owner, err := s.repo.GetSecurableItemOwner(ctx, securableItem)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return false, err
	}
	if owner == clientID {
		return true, nil
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	return ownsItem(client.TopLevel, grain, securableItem), nil
}

func ownsItem(topLevel *SecurableItem, grain, securableItem string) bool {
	if topLevel == nil {
		return false
	}
	if isTopLevelGrain(grain) && topLevel.Name == securableItem {
		return true
	}
	return hasRequestedItem(topLevel, grain, securableItem)
}

// hasRequestedItem walks the tree looking for a parent named after the
// grain with a child named after the securable item.
func hasRequestedItem(parent *SecurableItem, grain, securableItem string) bool {
	if len(parent.Children) == 0 {
		return false
	}
	if parent.Name == grain {
		for _, child := range parent.Children {
			if child.Name == securableItem {
				return true
			}
		}
	}
	for _, child := range parent.Children {
		if hasRequestedItem(child, grain, securableItem) {
			return true
		}
	}
	return false
}
