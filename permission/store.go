package permission

import (
	"context"

	"github.com/crewbase/keeper/id"
)

// Store defines persistence operations for the permission catalog.
type Store interface {
	// CreatePermission persists a new catalog entry.
	CreatePermission(ctx context.Context, p *Permission) error

	// GetPermission retrieves a permission by ID.
	GetPermission(ctx context.Context, permID id.PermissionID) (*Permission, error)

	// GetPermissionByName retrieves a permission by its dotted name.
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)

	// DeletePermission removes a permission by ID.
	DeletePermission(ctx context.Context, permID id.PermissionID) error

	// ListPermissions returns catalog entries matching the filter.
	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)

	// CountPermissions returns the number of entries matching the filter.
	CountPermissions(ctx context.Context, filter *ListFilter) (int64, error)

	// ListPermissionsByRole returns all permissions attached to a role,
	// regardless of effect.
	ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*Permission, error)
}
