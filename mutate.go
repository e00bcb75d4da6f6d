package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
)

// CreateRoleRequest is the input to CreateRole. Permissions and Denies are
// dotted catalog names; each must resolve to an existing catalog entry.
type CreateRoleRequest struct {
	WorkspaceID string     `json:"workspace_id,omitempty"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name,omitempty"`
	Description string     `json:"description,omitempty"`
	Level       role.Level `json:"level"`
	IsDefault   bool       `json:"is_default,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	Denies      []string   `json:"denies,omitempty"`
	ActorID     string     `json:"actor_id,omitempty"`
}

// AssignRoleRequest is the input to AssignRole. A zero Scope assigns the role
// globally; ValidFrom/ValidUntil bound the assignment in time, nil meaning
// unbounded on that side.
type AssignRoleRequest struct {
	UserID     string     `json:"user_id"`
	RoleID     id.RoleID  `json:"role_id"`
	Scope      Scope      `json:"scope,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	ActorID    string     `json:"actor_id,omitempty"`
}

// GrantResourceRequest is the input to GrantResourcePermission.
type GrantResourceRequest struct {
	UserID       string            `json:"user_id"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Actions      []string          `json:"actions"`
	Effect       permission.Effect `json:"effect,omitempty"` // defaults to grant
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
}

// CreateRole creates a role with its permission grants. Every referenced
// permission name must exist in the catalog; a wildcard name refers to the
// wildcard catalog row, it is not expanded. Role names are unique per
// workspace and at most one role per workspace may be the default.
func (e *Engine) CreateRole(ctx context.Context, req *CreateRoleRequest) (*role.Role, error) {
	if req.Name == "" {
		return nil, errors.New("keeper: role name is required")
	}
	if !req.Level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoleLevel, req.Level)
	}

	if _, err := e.store.GetRoleByName(ctx, req.WorkspaceID, req.Name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateRole, req.Name)
	} else if !errors.Is(err, role.ErrNotFound) {
		return nil, fmt.Errorf("keeper create role: %w", err)
	}

	if req.IsDefault {
		exists, err := e.store.HasDefaultRole(ctx, req.WorkspaceID)
		if err != nil {
			return nil, fmt.Errorf("keeper create role: %w", err)
		}
		if exists {
			return nil, ErrDefaultRoleExists
		}
	}

	roleID := id.NewRoleID()
	grants, err := e.resolveGrants(ctx, roleID, req.Permissions, req.Denies)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	r := &role.Role{
		ID:          roleID,
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Level:       req.Level,
		IsDefault:   req.IsDefault,
		CreatedBy:   e.actor(ctx, req.ActorID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if r.DisplayName == "" {
		r.DisplayName = r.Name
	}

	entry := e.newAuditEntry(ctx, audit.ActionRoleCreated, r.CreatedBy, "role", roleID.String(), map[string]any{
		"name":         req.Name,
		"workspace_id": req.WorkspaceID,
		"level":        string(req.Level),
		"permissions":  req.Permissions,
	})
	if err := e.store.CreateRole(ctx, r, grants, entry); err != nil {
		return nil, fmt.Errorf("keeper create role: %w", err)
	}

	if e.cache != nil {
		e.cache.Flush(ctx)
	}
	if e.plugins != nil {
		e.plugins.EmitRoleCreated(ctx, r)
	}
	e.logger.Info("role created",
		"role_id", roleID.String(),
		"name", req.Name,
		"workspace_id", req.WorkspaceID,
	)
	return r, nil
}

// DeleteRole removes a role, its permission grants, and every assignment
// referencing it. System roles cannot be deleted.
func (e *Engine) DeleteRole(ctx context.Context, roleID id.RoleID, actorID string) error {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("keeper delete role: %w", err)
	}
	if r.IsSystem {
		return fmt.Errorf("%w: %q", ErrSystemRoleImmutable, r.Name)
	}

	entry := e.newAuditEntry(ctx, audit.ActionRoleDeleted, e.actor(ctx, actorID), "role", roleID.String(), map[string]any{
		"name":         r.Name,
		"workspace_id": r.WorkspaceID,
	})
	if err := e.store.DeleteRole(ctx, roleID, entry); err != nil {
		return fmt.Errorf("keeper delete role: %w", err)
	}

	if e.cache != nil {
		e.cache.Flush(ctx)
	}
	if e.plugins != nil {
		e.plugins.EmitRoleDeleted(ctx, roleID)
	}
	e.logger.Info("role deleted", "role_id", roleID.String(), "name", r.Name)
	return nil
}

// AssignRole binds a role to a user, optionally scoped and time-bounded.
// Assigning the same (user, role, scope) binding twice is an error.
func (e *Engine) AssignRole(ctx context.Context, req *AssignRoleRequest) (*assignment.Assignment, error) {
	if req.UserID == "" {
		return nil, errors.New("keeper: user id is required")
	}
	if !req.Scope.Valid() {
		return nil, fmt.Errorf("%w: type %q id %q", ErrInvalidScope, req.Scope.Type, req.Scope.ID)
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && !req.ValidFrom.Before(*req.ValidUntil) {
		return nil, ErrInvalidValidity
	}

	if _, err := e.store.GetRole(ctx, req.RoleID); err != nil {
		return nil, fmt.Errorf("keeper assign role: %w", err)
	}

	if _, err := e.store.FindAssignment(ctx, req.UserID, req.RoleID, req.Scope); err == nil {
		return nil, ErrDuplicateAssignment
	} else if !errors.Is(err, assignment.ErrNotFound) {
		return nil, fmt.Errorf("keeper assign role: %w", err)
	}

	a := &assignment.Assignment{
		ID:         id.NewAssignmentID(),
		UserID:     req.UserID,
		RoleID:     req.RoleID,
		ScopeType:  req.Scope.Type,
		ScopeID:    req.Scope.ID,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		AssignedBy: e.actor(ctx, req.ActorID),
		CreatedAt:  e.now().UTC(),
	}

	entry := e.newAuditEntry(ctx, audit.ActionRoleAssigned, a.AssignedBy, "user", req.UserID, map[string]any{
		"role_id":    req.RoleID.String(),
		"scope_type": string(req.Scope.Type),
		"scope_id":   req.Scope.ID,
	})
	if err := e.store.CreateAssignment(ctx, a, entry); err != nil {
		return nil, fmt.Errorf("keeper assign role: %w", err)
	}

	if e.cache != nil {
		e.cache.InvalidateUser(ctx, req.UserID)
	}
	if e.plugins != nil {
		e.plugins.EmitRoleAssigned(ctx, a)
	}
	e.logger.Info("role assigned",
		"user_id", req.UserID,
		"role_id", req.RoleID.String(),
		"scope_type", string(req.Scope.Type),
	)
	return a, nil
}

// RevokeRole removes the assignment matching the exact (user, role, scope)
// binding. Revoking a binding that does not exist is an error.
func (e *Engine) RevokeRole(ctx context.Context, userID string, roleID id.RoleID, scope Scope, actorID string) error {
	if !scope.Valid() {
		return fmt.Errorf("%w: type %q id %q", ErrInvalidScope, scope.Type, scope.ID)
	}

	entry := e.newAuditEntry(ctx, audit.ActionRoleRevoked, e.actor(ctx, actorID), "user", userID, map[string]any{
		"role_id":    roleID.String(),
		"scope_type": string(scope.Type),
		"scope_id":   scope.ID,
	})
	n, err := e.store.DeleteAssignmentByBinding(ctx, userID, roleID, scope, entry)
	if err != nil {
		return fmt.Errorf("keeper revoke role: %w", err)
	}
	if n == 0 {
		return ErrAssignmentNotFound
	}

	if e.cache != nil {
		e.cache.InvalidateUser(ctx, userID)
	}
	if e.plugins != nil {
		e.plugins.EmitRoleRevoked(ctx, userID, roleID, scope)
	}
	e.logger.Info("role revoked", "user_id", userID, "role_id", roleID.String())
	return nil
}

// GrantResourcePermission gives a user actions on one specific resource. A
// repeated grant for the same (user, resource, effect) unions the action sets
// and replaces the expiry.
func (e *Engine) GrantResourcePermission(ctx context.Context, req *GrantResourceRequest) (*grant.Grant, error) {
	if req.UserID == "" {
		return nil, errors.New("keeper: user id is required")
	}
	if req.ResourceType == "" || req.ResourceID == "" {
		return nil, errors.New("keeper: resource type and id are required")
	}
	if len(req.Actions) == 0 {
		return nil, ErrEmptyActions
	}
	effect := req.Effect
	if effect == "" {
		effect = permission.EffectGrant
	}

	now := e.now().UTC()
	g := &grant.Grant{
		ID:           id.NewGrantID(),
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Actions:      req.Actions,
		Effect:       effect,
		ExpiresAt:    req.ExpiresAt,
		GrantedBy:    e.actor(ctx, req.ActorID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	entry := e.newAuditEntry(ctx, audit.ActionResourceGranted, g.GrantedBy, req.ResourceType, req.ResourceID, map[string]any{
		"user_id": req.UserID,
		"actions": req.Actions,
		"effect":  string(effect),
	})
	grantID, err := e.store.GrantActions(ctx, g, entry)
	if err != nil {
		return nil, fmt.Errorf("keeper grant resource: %w", err)
	}
	g.ID = grantID

	if e.cache != nil {
		e.cache.InvalidateUser(ctx, req.UserID)
	}
	if e.plugins != nil {
		e.plugins.EmitResourceGranted(ctx, g)
	}
	e.logger.Info("resource permission granted",
		"user_id", req.UserID,
		"resource_type", req.ResourceType,
		"resource_id", req.ResourceID,
	)
	return g, nil
}

// RevokeResourcePermission removes actions from a user's grant on a resource.
// A nil action list removes the whole grant row. Revoking when no matching
// row exists is an error.
func (e *Engine) RevokeResourcePermission(ctx context.Context, userID, resourceType, resourceID string, actions []string, effect permission.Effect, actorID string) error {
	if effect == "" {
		effect = permission.EffectGrant
	}

	entry := e.newAuditEntry(ctx, audit.ActionResourceRevoked, e.actor(ctx, actorID), resourceType, resourceID, map[string]any{
		"user_id": userID,
		"actions": actions,
		"effect":  string(effect),
	})
	n, err := e.store.RevokeActions(ctx, userID, resourceType, resourceID, actions, effect, entry)
	if err != nil {
		return fmt.Errorf("keeper revoke resource: %w", err)
	}
	if n == 0 {
		return ErrGrantNotFound
	}

	if e.cache != nil {
		e.cache.InvalidateUser(ctx, userID)
	}
	if e.plugins != nil {
		e.plugins.EmitResourceRevoked(ctx, userID, resourceType, resourceID, actions)
	}
	e.logger.Info("resource permission revoked",
		"user_id", userID,
		"resource_type", resourceType,
		"resource_id", resourceID,
	)
	return nil
}

// resolveGrants maps permission names to catalog rows and builds the role's
// grant list. Names resolve by exact catalog lookup, wildcards included.
func (e *Engine) resolveGrants(ctx context.Context, roleID id.RoleID, grants, denies []string) ([]role.PermissionGrant, error) {
	out := make([]role.PermissionGrant, 0, len(grants)+len(denies))
	seen := make(map[string]struct{}, len(grants)+len(denies))

	add := func(names []string, effect permission.Effect) error {
		for _, name := range names {
			if _, err := permission.ParseName(name); err != nil {
				return err
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			p, err := e.store.GetPermissionByName(ctx, name)
			if err != nil {
				if errors.Is(err, permission.ErrNotFound) && !e.config.strictCatalog() {
					continue
				}
				return fmt.Errorf("resolve %q: %w", name, err)
			}
			out = append(out, role.PermissionGrant{
				RoleID:       roleID,
				PermissionID: p.ID,
				Effect:       effect,
			})
		}
		return nil
	}

	if err := add(grants, permission.EffectGrant); err != nil {
		return nil, err
	}
	if err := add(denies, permission.EffectDeny); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) actor(ctx context.Context, actorID string) string {
	if actorID != "" {
		return actorID
	}
	return actorIDFromContext(ctx)
}

func (e *Engine) newAuditEntry(ctx context.Context, action, actorID, targetType, targetID string, details map[string]any) *audit.Entry {
	return &audit.Entry{
		ID:         id.NewAuditID(),
		Action:     action,
		ActorID:    actorID,
		ActorIP:    actorIPFromContext(ctx),
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  e.now().UTC(),
	}
}
