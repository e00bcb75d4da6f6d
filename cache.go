package keeper

import (
	"context"

	"github.com/crewbase/keeper/permission"
)

// Cache stores resolved permission sets keyed by user and scope. The engine
// invalidates a user's entries on assignment changes and flushes everything
// on role-level changes.
type Cache interface {
	// Get returns the cached permission set for a user in a scope, if any.
	Get(ctx context.Context, userID string, scope Scope) (*permission.Set, bool)

	// Set stores the resolved permission set for a user in a scope.
	Set(ctx context.Context, userID string, scope Scope, set *permission.Set)

	// InvalidateUser removes all cached sets for a user, across scopes.
	InvalidateUser(ctx context.Context, userID string)

	// Flush removes all cached sets.
	Flush(ctx context.Context)
}
