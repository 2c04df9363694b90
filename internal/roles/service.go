package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/caretide/authz/internal/shared"
)

// ErrScopeMismatch indicates a parent role in a different grain/securable-item
// scope. The resolver never crosses scopes when climbing the hierarchy, so a
// cross-scope parent would silently contribute nothing.
var ErrScopeMismatch = errors.New("roles: parent role must share the role's grain and securable item")

// RoleRepository is the persistence surface the service needs.
type RoleRepository interface {
	ListRoles(ctx context.Context, grain, securableItem string, page shared.Pagination) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	CreateRole(ctx context.Context, grain, securableItem, name string, parentID *uuid.UUID) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	AttachPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, action string) error
	DetachPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	CreatePermission(ctx context.Context, grain, securableItem, name string) (Permission, error)
	GetPermission(ctx context.Context, id uuid.UUID) (Permission, error)
	DeletePermission(ctx context.Context, id uuid.UUID) error
}

// Auditor records administrative mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates role and permission administration.
type Service struct {
	repo   RoleRepository
	audit  Auditor
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RoleRepository, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListRoles returns roles in the optional scope.
func (s *Service) ListRoles(ctx context.Context, grain, securableItem string, page shared.Pagination) ([]Role, error) {
	return s.repo.ListRoles(ctx, grain, securableItem, page)
}

// CreateRole validates and inserts a role. A parent, when given, must exist
// and share the new role's scope.
func (s *Service) CreateRole(ctx context.Context, grain, securableItem, name string, parentID *uuid.UUID) (Role, error) {
	grain = strings.TrimSpace(grain)
	securableItem = strings.TrimSpace(securableItem)
	name = strings.TrimSpace(name)
	if grain == "" || securableItem == "" || name == "" {
		return Role{}, errors.New("roles: grain, securable item and name are required")
	}

	if parentID != nil {
		parent, err := s.repo.GetRole(ctx, *parentID)
		if err != nil {
			return Role{}, fmt.Errorf("roles: resolve parent: %w", err)
		}
		if parent.Grain != grain || parent.SecurableItem != securableItem {
			return Role{}, ErrScopeMismatch
		}
	}

	role, err := s.repo.CreateRole(ctx, grain, securableItem, name, parentID)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.create", role.ID.String(), map[string]any{"grain": grain, "securableItem": securableItem, "name": name})
	return role, nil
}

// DeleteRole soft-deletes a role and its links.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "role.delete", id.String(), nil)
	return nil
}

// AddPermissionsToRole attaches catalog permissions as allow or deny
// grants. Every permission must share the role's grain and securable item.
func (s *Service) AddPermissionsToRole(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, action string) error {
	if action != "allow" && action != "deny" {
		return fmt.Errorf("roles: unknown permission action %q", action)
	}
	if len(permissionIDs) == 0 {
		return errors.New("roles: no permissions specified")
	}

	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		perm, err := s.repo.GetPermission(ctx, pid)
		if err != nil {
			return fmt.Errorf("roles: resolve permission %s: %w", pid, err)
		}
		if perm.Grain != role.Grain || perm.SecurableItem != role.SecurableItem {
			return fmt.Errorf("roles: permission %s/%s.%s is outside the role's scope", perm.Grain, perm.SecurableItem, perm.Name)
		}
	}

	if err := s.repo.AttachPermissions(ctx, roleID, permissionIDs, action); err != nil {
		return err
	}
	s.record(ctx, "role.permissions.add", roleID.String(), map[string]any{"count": len(permissionIDs), "action": action})
	return nil
}

// RemovePermissionsFromRole detaches permissions from a role.
func (s *Service) RemovePermissionsFromRole(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if len(permissionIDs) == 0 {
		return errors.New("roles: no permissions specified")
	}
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.DetachPermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.record(ctx, "role.permissions.remove", roleID.String(), map[string]any{"count": len(permissionIDs)})
	return nil
}

// CreatePermission inserts a catalog permission.
func (s *Service) CreatePermission(ctx context.Context, grain, securableItem, name string) (Permission, error) {
	grain = strings.TrimSpace(grain)
	securableItem = strings.TrimSpace(securableItem)
	name = strings.TrimSpace(name)
	if grain == "" || securableItem == "" || name == "" {
		return Permission{}, errors.New("roles: grain, securable item and name are required")
	}
	perm, err := s.repo.CreatePermission(ctx, grain, securableItem, name)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, "permission.create", perm.ID.String(), map[string]any{"grain": grain, "securableItem": securableItem, "name": name})
	return perm, nil
}

// DeletePermission soft-deletes a permission and removes it from every role
// that references it.
func (s *Service) DeletePermission(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "permission.delete", id.String(), nil)
	return nil
}

func (s *Service) record(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "role"
	if strings.HasPrefix(action, "permission.") {
		entity = "permission"
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit role admin", slog.Any("error", err))
	}
}
