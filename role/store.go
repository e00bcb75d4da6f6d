package role

import (
	"context"

	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/id"
)

// Store defines persistence operations for roles. Mutations that must appear
// in the audit trail take the entry and persist it in the same unit of work
// as the mutation.
type Store interface {
	// CreateRole persists a new role together with its permission grants
	// and the audit entry.
	CreateRole(ctx context.Context, r *Role, grants []PermissionGrant, log *audit.Entry) error

	// GetRole retrieves a role by ID.
	GetRole(ctx context.Context, roleID id.RoleID) (*Role, error)

	// GetRoleByName retrieves a role by workspace ("" = global) and name.
	GetRoleByName(ctx context.Context, workspaceID, name string) (*Role, error)

	// UpdateRole persists changes to a role.
	UpdateRole(ctx context.Context, r *Role) error

	// DeleteRole removes a role, its permission grants, and all assignments
	// referencing it, recording the audit entry in the same unit of work.
	DeleteRole(ctx context.Context, roleID id.RoleID, log *audit.Entry) error

	// ListRoles returns roles matching the filter.
	ListRoles(ctx context.Context, filter *ListFilter) ([]*Role, error)

	// CountRoles returns the number of roles matching the filter.
	CountRoles(ctx context.Context, filter *ListFilter) (int64, error)

	// HasDefaultRole reports whether the workspace already has a default
	// role.
	HasDefaultRole(ctx context.Context, workspaceID string) (bool, error)

	// ListPermissionGrants returns the permission grants attached to a role.
	ListPermissionGrants(ctx context.Context, roleID id.RoleID) ([]PermissionGrant, error)

	// AttachPermission links a permission to a role with the given effect.
	AttachPermission(ctx context.Context, g PermissionGrant) error

	// DetachPermission removes a permission from a role.
	DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error

	// SetPermissionGrants replaces all permission grants for a role.
	SetPermissionGrants(ctx context.Context, roleID id.RoleID, grants []PermissionGrant) error
}
