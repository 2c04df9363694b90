// Package roles provides administrative management of roles and the
// permission catalog. The resolution engine reads this data; it never
// writes it.
package roles

import (
	"time"

	"github.com/google/uuid"
)

// Role is the administrative view of a role.
type Role struct {
	ID            uuid.UUID
	Grain         string
	SecurableItem string
	Name          string
	ParentID      *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Permission is a catalog entry that roles grant or deny.
type Permission struct {
	ID            uuid.UUID
	Grain         string
	SecurableItem string
	Name          string
	CreatedAt     time.Time
}

// PermissionAssignment attaches a catalog permission to a role as either an
// allow or a deny.
type PermissionAssignment struct {
	RoleID       uuid.UUID
	PermissionID uuid.UUID
	Action       string
}
