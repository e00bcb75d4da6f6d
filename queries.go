package keeper

import (
	"context"
	"fmt"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
)

// UserRoleView pairs an assignment with the role it binds, for admin UIs.
type UserRoleView struct {
	Assignment *assignment.Assignment `json:"assignment"`
	Role       *role.Role             `json:"role"`
}

// GetRole retrieves a role by ID.
func (e *Engine) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	return e.store.GetRole(ctx, roleID)
}

// GetRoleByName retrieves a role by workspace ("" = global) and name.
func (e *Engine) GetRoleByName(ctx context.Context, workspaceID, name string) (*role.Role, error) {
	return e.store.GetRoleByName(ctx, workspaceID, name)
}

// ListRoles returns roles matching the filter.
func (e *Engine) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	if filter == nil {
		filter = &role.ListFilter{}
	}
	return e.store.ListRoles(ctx, filter)
}

// ListRolePermissions returns the catalog permissions attached to a role.
func (e *Engine) ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	return e.store.ListPermissionsByRole(ctx, roleID)
}

// ListPermissions returns catalog permissions matching the filter.
func (e *Engine) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	if filter == nil {
		filter = &permission.ListFilter{}
	}
	return e.store.ListPermissions(ctx, filter)
}

// PermissionsByCategory returns the whole catalog grouped by category, for
// role editor UIs.
func (e *Engine) PermissionsByCategory(ctx context.Context) (map[string][]*permission.Permission, error) {
	perms, err := e.store.ListPermissions(ctx, &permission.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("keeper list permissions: %w", err)
	}
	out := make(map[string][]*permission.Permission)
	for _, p := range perms {
		out[p.Category] = append(out[p.Category], p)
	}
	return out, nil
}

// ListUserRoles returns the user's currently valid assignments visible in
// the scope (global assignments plus those matching the scope exactly),
// paired with their roles. Expired and not-yet-valid assignments are
// excluded.
func (e *Engine) ListUserRoles(ctx context.Context, userID string, scope Scope) ([]*UserRoleView, error) {
	asgns, err := e.store.ListAssignmentsForUser(ctx, userID, e.now().UTC(), scope)
	if err != nil {
		return nil, fmt.Errorf("keeper list user roles: %w", err)
	}

	views := make([]*UserRoleView, 0, len(asgns))
	roles := make(map[string]*role.Role, len(asgns))
	for _, a := range asgns {
		r, ok := roles[a.RoleID.String()]
		if !ok {
			r, err = e.store.GetRole(ctx, a.RoleID)
			if err != nil {
				return nil, fmt.Errorf("keeper list user roles: %w", err)
			}
			roles[a.RoleID.String()] = r
		}
		views = append(views, &UserRoleView{Assignment: a, Role: r})
	}
	return views, nil
}

// ListUserGrants returns the user's direct resource grants that are
// unexpired at the engine's current time.
func (e *Engine) ListUserGrants(ctx context.Context, userID string) ([]*grant.Grant, error) {
	return e.store.ListGrantsForUser(ctx, userID, e.now().UTC())
}

// AuditTrail returns audit entries matching the filter, newest first. A
// missing limit falls back to the configured default page size.
func (e *Engine) AuditTrail(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	if filter == nil {
		filter = &audit.QueryFilter{}
	}
	if filter.Limit <= 0 {
		filter.Limit = e.config.AuditQueryLimit
	}
	return e.store.ListEntries(ctx, filter)
}
