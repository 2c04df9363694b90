package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/caretide/authz/internal/shared"
)

// UserRepository is the persistence surface the service needs.
type UserRepository interface {
	CreateUser(ctx context.Context, subjectID, identityProvider string) (User, error)
	GetUser(ctx context.Context, subjectID, identityProvider string) (User, error)
	DeleteUser(ctx context.Context, subjectID, identityProvider string) error
	CreateGroup(ctx context.Context, name, source string) (Group, error)
	GetGroupByName(ctx context.Context, name string) (Group, error)
	AddUserToGroup(ctx context.Context, subjectID, identityProvider string, groupID uuid.UUID) error
	RemoveUserFromGroup(ctx context.Context, subjectID, identityProvider string, groupID uuid.UUID) error
	AddRoleToGroup(ctx context.Context, groupID, roleID uuid.UUID) error
	RemoveRoleFromGroup(ctx context.Context, groupID, roleID uuid.UUID) error
}

// Service orchestrates user and group administration.
type Service struct {
	repo   UserRepository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo UserRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateUser registers a user identity.
func (s *Service) CreateUser(ctx context.Context, subjectID, identityProvider string) (User, error) {
	subjectID = strings.TrimSpace(subjectID)
	identityProvider = strings.TrimSpace(identityProvider)
	if subjectID == "" || identityProvider == "" {
		return User{}, errors.New("users: subject id and identity provider are required")
	}
	return s.repo.CreateUser(ctx, subjectID, identityProvider)
}

// GetUser fetches a user with group memberships.
func (s *Service) GetUser(ctx context.Context, subjectID, identityProvider string) (User, error) {
	return s.repo.GetUser(ctx, subjectID, identityProvider)
}

// DeleteUser soft-deletes a user; their granular permissions stop resolving
// with them.
func (s *Service) DeleteUser(ctx context.Context, subjectID, identityProvider string) error {
	return s.repo.DeleteUser(ctx, subjectID, identityProvider)
}

// CreateGroup registers a group.
func (s *Service) CreateGroup(ctx context.Context, name, source string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, errors.New("users: group name required")
	}
	if source == "" {
		source = "custom"
	}
	return s.repo.CreateGroup(ctx, name, source)
}

// AddUserToGroup links a user to a group by group name.
func (s *Service) AddUserToGroup(ctx context.Context, subjectID, identityProvider, groupName string) error {
	group, err := s.repo.GetGroupByName(ctx, groupName)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetUser(ctx, subjectID, identityProvider); err != nil {
		return err
	}
	return s.repo.AddUserToGroup(ctx, subjectID, identityProvider, group.ID)
}

// RemoveUserFromGroup unlinks a user from a group by group name.
func (s *Service) RemoveUserFromGroup(ctx context.Context, subjectID, identityProvider, groupName string) error {
	group, err := s.repo.GetGroupByName(ctx, groupName)
	if err != nil {
		return err
	}
	return s.repo.RemoveUserFromGroup(ctx, subjectID, identityProvider, group.ID)
}

// AddRoleToGroup attaches a role to a group by group name.
func (s *Service) AddRoleToGroup(ctx context.Context, groupName string, roleID uuid.UUID) error {
	group, err := s.repo.GetGroupByName(ctx, groupName)
	if err != nil {
		return err
	}
	return s.repo.AddRoleToGroup(ctx, group.ID, roleID)
}

// RemoveRoleFromGroup detaches a role from a group by group name.
func (s *Service) RemoveRoleFromGroup(ctx context.Context, groupName string, roleID uuid.UUID) error {
	group, err := s.repo.GetGroupByName(ctx, groupName)
	if err != nil {
		return err
	}
	return s.repo.RemoveRoleFromGroup(ctx, group.ID, roleID)
}

// IsNotFound reports whether err is the repository's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
