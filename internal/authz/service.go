package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/caretide/authz/internal/shared"
)

// Auditor records administrative mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TaskEnqueuer hands background work to the job queue.
type TaskEnqueuer interface {
	EnqueuePermissionWarm(ctx context.Context, userID string) error
}

// MetricsObserver counts resolution outcomes and cache lookups.
type MetricsObserver interface {
	ObserveResolution(outcome string)
	ObserveCacheLookup(result string)
}

// ServiceConfig collects the optional collaborators of the Service.
type ServiceConfig struct {
	Cache    *Cache
	Enqueuer TaskEnqueuer
	Metrics  MetricsObserver
}

// Service is the entry point for permission resolution and granular
// permission mutation. Reads are pure and lock-free; mutations for the same
// user are serialized through a per-user mutex so the read-validate-write
// sequence never interleaves and the allow/deny disjointness invariant
// holds.
type Service struct {
	store    Store
	resolver *Resolver
	audit    Auditor
	logger   *slog.Logger
	cfg      ServiceConfig

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewService constructs the authorization service.
func NewService(store Store, audit Auditor, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		resolver:  NewResolver(store),
		audit:     audit,
		logger:    logger,
		cfg:       cfg,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Resolver exposes the underlying resolver for callers that bypass caching.
func (s *Service) Resolver() *Resolver { return s.resolver }

// User returns the stored user for the given identity.
func (s *Service) User(ctx context.Context, subjectID, identityProvider string) (User, error) {
	return s.store.User(ctx, subjectID, identityProvider)
}

// ResolvePermissionsForGroups computes the role-derived permission set for
// the given groups within the optional grain/securable-item scope.
func (s *Service) ResolvePermissionsForGroups(ctx context.Context, groupNames []string, grain, securableItem string) ([]string, error) {
	return s.resolver.PermissionsForGroups(ctx, groupNames, grain, securableItem)
}

// ResolvePermissionsForUser computes the effective permission set for a
// user, consulting the cache when one is configured.
func (s *Service) ResolvePermissionsForUser(ctx context.Context, userID string, groupNames []string, grain, securableItem string) ([]string, error) {
	perms, err := s.resolveUser(ctx, userID, groupNames, grain, securableItem)
	if s.cfg.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.cfg.Metrics.ObserveResolution(outcome)
	}
	return perms, err
}

func (s *Service) resolveUser(ctx context.Context, userID string, groupNames []string, grain, securableItem string) ([]string, error) {
	if s.cfg.Cache == nil {
		return s.resolver.PermissionsForUser(ctx, userID, groupNames, grain, securableItem)
	}
	return s.cfg.Cache.FetchPermissions(ctx, userID, groupNames, grain, securableItem, func(ctx context.Context) ([]string, error) {
		return s.resolver.PermissionsForUser(ctx, userID, groupNames, grain, securableItem)
	})
}

// GranularPermissions returns the stored override record for a user.
func (s *Service) GranularPermissions(ctx context.Context, userID string) (GranularPermission, error) {
	return s.store.GranularPermission(ctx, userID)
}

// AddGranularPermissions validates and persists new per-user allow and deny
// grants. The whole batch is rejected when any permission conflicts with
// the stored record or with the batch itself.
func (s *Service) AddGranularPermissions(ctx context.Context, userID string, allow, deny []Permission) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.GranularPermission(ctx, userID)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("authz: load granular permissions: %w", err)
	}

	if err := validateAdd(allow, deny, existing.AdditionalPermissions, existing.DeniedPermissions); err != nil {
		return err
	}

	merged := GranularPermission{
		UserID:                userID,
		AdditionalPermissions: append(append([]Permission{}, existing.AdditionalPermissions...), allow...),
		DeniedPermissions:     append(append([]Permission{}, existing.DeniedPermissions...), deny...),
	}
	if err := s.store.SaveGranularPermission(ctx, merged); err != nil {
		return fmt.Errorf("authz: save granular permissions: %w", err)
	}

	s.afterMutation(ctx, userID, "granular.add", len(allow), len(deny))
	return nil
}

// DeleteGranularPermissions validates and removes per-user grants. Every
// named permission must exist under the named action; otherwise the whole
// batch is rejected with an itemized report.
func (s *Service) DeleteGranularPermissions(ctx context.Context, userID string, allow, deny []Permission) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.GranularPermission(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			// No record at all: every requested key is missing.
			return validateDelete(allow, deny, nil, nil)
		}
		return fmt.Errorf("authz: load granular permissions: %w", err)
	}

	if err := validateDelete(allow, deny, existing.AdditionalPermissions, existing.DeniedPermissions); err != nil {
		return err
	}

	updated := GranularPermission{
		UserID:                userID,
		AdditionalPermissions: subtractKeys(existing.AdditionalPermissions, allow),
		DeniedPermissions:     subtractKeys(existing.DeniedPermissions, deny),
	}
	if err := s.store.SaveGranularPermission(ctx, updated); err != nil {
		return fmt.Errorf("authz: save granular permissions: %w", err)
	}

	s.afterMutation(ctx, userID, "granular.delete", len(allow), len(deny))
	return nil
}

func (s *Service) afterMutation(ctx context.Context, userID, action string, allowCount, denyCount int) {
	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate permission cache", slog.Any("error", err))
		}
	}
	if s.cfg.Enqueuer != nil {
		if err := s.cfg.Enqueuer.EnqueuePermissionWarm(ctx, userID); err != nil {
			s.logger.Warn("enqueue permission warm", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Action:   action,
			Entity:   "granular_permission",
			EntityID: userID,
			Meta:     map[string]any{"allow": allowCount, "deny": denyCount},
		})
		if err != nil {
			s.logger.Warn("audit granular mutation", slog.Any("error", err))
		}
	}
}

// userLock returns the mutex guarding mutations for one user identity.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}
