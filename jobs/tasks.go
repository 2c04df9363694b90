// Package jobs contains the background task definitions and the Asynq
// worker plumbing around them.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/caretide/authz/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionWarm re-resolves a user's permissions so the cache is
	// hot again after a granular mutation bumped the cache version.
	TaskPermissionWarm = "authz:permissions:warm"
	// TaskAuditPurge trims audit log rows past the retention window.
	TaskAuditPurge = "authz:audit:purge"
)

// PermissionWarmPayload identifies the user whose permissions to warm.
type PermissionWarmPayload struct {
	UserID string `json:"userId"`
}

// AuditPurgePayload carries the retention window for the purge run.
type AuditPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewPermissionWarmTask constructs an Asynq task for cache warming.
func NewPermissionWarmTask(payload PermissionWarmPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionWarm, data), nil
}

// NewAuditPurgeTask constructs an Asynq task for audit log retention.
func NewAuditPurgeTask(payload AuditPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data), nil
}

// PermissionWarmer resolves the full permission list for a user. The
// resolution populates the cache as a side effect.
type PermissionWarmer interface {
	ResolvePermissionsForUser(ctx context.Context, userID string, groupNames []string, grain, securableItem string) ([]string, error)
}

// NewPermissionWarmHandler builds the handler for TaskPermissionWarm.
func NewPermissionWarmHandler(warmer PermissionWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskPermissionWarm)
		var payload PermissionWarmPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if payload.UserID == "" {
			return tracker.End(asynq.SkipRetry)
		}
		perms, err := warmer.ResolvePermissionsForUser(ctx, payload.UserID, nil, "", "")
		if err != nil {
			logger.Warn("permission warm failed",
				slog.String("user_id", payload.UserID),
				slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Debug("permission cache warmed",
			slog.String("user_id", payload.UserID),
			slog.Int("permissions", len(perms)))
		return tracker.End(nil)
	}
}

// NewAuditPurgeHandler builds the handler for TaskAuditPurge.
func NewAuditPurgeHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskAuditPurge)
		var payload AuditPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if payload.Retention <= 0 {
			return tracker.End(asynq.SkipRetry)
		}
		cutoff := time.Now().UTC().Add(-payload.Retention)
		tag, err := pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
		if err != nil {
			logger.Warn("audit purge failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("audit logs purged",
			slog.Int64("rows", tag.RowsAffected()),
			slog.Time("cutoff", cutoff))
		return tracker.End(nil)
	}
}
