// Package plugin defines the plugin system for Keeper.
// Plugins are notified of lifecycle events (check performed, role created,
// role assigned, etc.) and can react — logging, metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before a permission check is evaluated.
// The req parameter is *keeper.CheckRequest (passed as any to avoid import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after a permission check completes.
// The req parameter is *keeper.CheckRequest; result is *keeper.CheckResult.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, result any) error
}

// ──────────────────────────────────────────────────
// Role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a role is created.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

// RoleDeleted is called after a role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Assignment lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role is assigned to a user.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, a *assignment.Assignment) error
}

// RoleRevoked is called after a role assignment is revoked.
type RoleRevoked interface {
	OnRoleRevoked(ctx context.Context, userID string, roleID id.RoleID, scope assignment.Scope) error
}

// ──────────────────────────────────────────────────
// Resource grant lifecycle hooks
// ──────────────────────────────────────────────────

// ResourceGranted is called after a direct resource grant is written.
type ResourceGranted interface {
	OnResourceGranted(ctx context.Context, g *grant.Grant) error
}

// ResourceRevoked is called after actions are revoked from a resource grant.
type ResourceRevoked interface {
	OnResourceRevoked(ctx context.Context, userID, resourceType, resourceID string, actions []string) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
