// Package clients manages the API clients registered with the
// authorization service and the securable-item trees they own. Ownership
// answers "may this client administer that resource" and is deliberately
// separate from permission resolution.
package clients

import (
	"time"

	"github.com/google/uuid"
)

// topLevelGrains grant grain-level ownership directly: a client whose
// top-level securable item matches the requested item owns it within these
// grains without walking the tree.
var topLevelGrains = []string{"app", "patient", "user"}

// Client is a registered consumer of the authorization service.
type Client struct {
	ID         string
	Name       string
	SecretHash string
	TopLevel   *SecurableItem
	IsDeleted  bool
	CreatedAt  time.Time
}

// SecurableItem is a node in a client's resource tree.
type SecurableItem struct {
	ID          uuid.UUID
	Name        string
	ClientOwner string
	Children    []*SecurableItem
}

// isTopLevelGrain reports whether the grain grants ownership at the grain
// level.
func isTopLevelGrain(grain string) bool {
	for _, g := range topLevelGrains {
		if g == grain {
			return true
		}
	}
	return false
}
