// Package users manages users and groups: the principals the resolution
// engine computes permissions for.
package users

import (
	"time"

	"github.com/google/uuid"
)

// User is identified by (subjectID, identityProvider); subject id matching
// is case-insensitive.
type User struct {
	SubjectID        string
	IdentityProvider string
	Groups           []string
	CreatedAt        time.Time
}

// Group is a named collection of users, usually mirrored from an external
// directory.
type Group struct {
	ID        uuid.UUID
	Name      string
	Source    string
	CreatedAt time.Time
}
