package grant

import (
	"context"
	"time"

	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
)

// Store defines persistence operations for resource grants. Mutations take
// the audit entry and persist it in the same unit of work.
type Store interface {
	// GrantActions adds actions to the user's grant row for the resource
	// and effect, creating the row if none exists and unioning the action
	// set otherwise. The expiry of an existing row is replaced. Returns the
	// ID of the created or updated row.
	GrantActions(ctx context.Context, g *Grant, log *audit.Entry) (id.GrantID, error)

	// RevokeActions removes actions from the user's grant row for the
	// resource and effect, deleting the row when its action set becomes
	// empty. A nil or empty action list removes the whole row. Returns the
	// number of actions removed.
	RevokeActions(ctx context.Context, userID, resourceType, resourceID string, actions []string, effect permission.Effect, log *audit.Entry) (int64, error)

	// GetGrant retrieves a grant by ID.
	GetGrant(ctx context.Context, grantID id.GrantID) (*Grant, error)

	// ListGrantsForResource returns the user's grants on one specific
	// resource that are unexpired at the given time.
	ListGrantsForResource(ctx context.Context, userID, resourceType, resourceID string, at time.Time) ([]*Grant, error)

	// ListGrantsForUser returns all of the user's grants unexpired at the
	// given time.
	ListGrantsForUser(ctx context.Context, userID string, at time.Time) ([]*Grant, error)

	// DeleteExpiredGrants removes grants that expired before the given
	// time. Intended for the external retention process.
	DeleteExpiredGrants(ctx context.Context, before time.Time) (int64, error)
}
