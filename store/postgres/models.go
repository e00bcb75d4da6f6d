package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
)

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:keeper_roles"`
	ID              string    `grove:"id,pk"`
	WorkspaceID     string    `grove:"workspace_id"`
	Name            string    `grove:"name,notnull"`
	DisplayName     string    `grove:"display_name"`
	Description     string    `grove:"description"`
	Level           string    `grove:"level,notnull"`
	IsSystem        bool      `grove:"is_system,notnull"`
	IsDefault       bool      `grove:"is_default,notnull"`
	CreatedBy       string    `grove:"created_by"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func roleToModel(r *role.Role) *roleModel {
	return &roleModel{
		ID:          r.ID.String(),
		WorkspaceID: r.WorkspaceID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		Level:       string(r.Level),
		IsSystem:    r.IsSystem,
		IsDefault:   r.IsDefault,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &role.Role{
		ID:          rid,
		WorkspaceID: m.WorkspaceID,
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Level:       role.Level(m.Level),
		IsSystem:    m.IsSystem,
		IsDefault:   m.IsDefault,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:keeper_permissions"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	Resource        string    `grove:"resource,notnull"`
	Action          string    `grove:"action,notnull"`
	Category        string    `grove:"category"`
	Description     string    `grove:"description"`
	IsSystem        bool      `grove:"is_system,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) *permissionModel {
	return &permissionModel{
		ID:          p.ID.String(),
		Name:        p.Key.Name(),
		Resource:    p.Key.Resource,
		Action:      string(p.Key.Action),
		Category:    p.Category,
		Description: p.Description,
		IsSystem:    p.IsSystem,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func permissionFromModel(m *permissionModel) *permission.Permission {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &permission.Permission{
		ID:          pid,
		Key:         permission.NewKey(m.Resource, permission.Action(m.Action)),
		Category:    m.Category,
		Description: m.Description,
		IsSystem:    m.IsSystem,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Role-Permission junction model
// ──────────────────────────────────────────────────

type rolePermissionModel struct {
	grove.BaseModel `grove:"table:keeper_role_permissions"`
	RoleID          string `grove:"role_id,pk"`
	PermissionID    string `grove:"permission_id,pk"`
	Effect          string `grove:"effect,notnull"`
}

func permissionGrantFromModel(m *rolePermissionModel) role.PermissionGrant {
	rid, _ := id.ParseRoleID(m.RoleID)             //nolint:errcheck // stored IDs are always valid
	pid, _ := id.ParsePermissionID(m.PermissionID) //nolint:errcheck // stored IDs are always valid
	return role.PermissionGrant{
		RoleID:       rid,
		PermissionID: pid,
		Effect:       permission.Effect(m.Effect),
	}
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:keeper_assignments"`
	ID              string     `grove:"id,pk"`
	UserID          string     `grove:"user_id,notnull"`
	RoleID          string     `grove:"role_id,notnull"`
	ScopeType       string     `grove:"scope_type"`
	ScopeID         string     `grove:"scope_id"`
	ValidFrom       *time.Time `grove:"valid_from"`
	ValidUntil      *time.Time `grove:"valid_until"`
	AssignedBy      string     `grove:"assigned_by"`
	CreatedAt       time.Time  `grove:"created_at,notnull"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
		ID:         a.ID.String(),
		UserID:     a.UserID,
		RoleID:     a.RoleID.String(),
		ScopeType:  string(a.ScopeType),
		ScopeID:    a.ScopeID,
		ValidFrom:  a.ValidFrom,
		ValidUntil: a.ValidUntil,
		AssignedBy: a.AssignedBy,
		CreatedAt:  a.CreatedAt,
	}
}

func assignmentFromModel(m *assignmentModel) *assignment.Assignment {
	aid, _ := id.ParseAssignmentID(m.ID) //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)   //nolint:errcheck // stored IDs are always valid
	return &assignment.Assignment{
		ID:         aid,
		UserID:     m.UserID,
		RoleID:     rid,
		ScopeType:  assignment.ScopeType(m.ScopeType),
		ScopeID:    m.ScopeID,
		ValidFrom:  m.ValidFrom,
		ValidUntil: m.ValidUntil,
		AssignedBy: m.AssignedBy,
		CreatedAt:  m.CreatedAt,
	}
}

// ──────────────────────────────────────────────────
// Resource grant model
// ──────────────────────────────────────────────────

type grantModel struct {
	grove.BaseModel `grove:"table:keeper_resource_grants"`
	ID              string     `grove:"id,pk"`
	UserID          string     `grove:"user_id,notnull"`
	ResourceType    string     `grove:"resource_type,notnull"`
	ResourceID      string     `grove:"resource_id,notnull"`
	Actions         []string   `grove:"actions,type:jsonb"`
	Effect          string     `grove:"effect,notnull"`
	ExpiresAt       *time.Time `grove:"expires_at"`
	GrantedBy       string     `grove:"granted_by"`
	CreatedAt       time.Time  `grove:"created_at,notnull"`
	UpdatedAt       time.Time  `grove:"updated_at,notnull"`
}

func grantToModel(g *grant.Grant) *grantModel {
	return &grantModel{
		ID:           g.ID.String(),
		UserID:       g.UserID,
		ResourceType: g.ResourceType,
		ResourceID:   g.ResourceID,
		Actions:      g.Actions,
		Effect:       string(g.Effect),
		ExpiresAt:    g.ExpiresAt,
		GrantedBy:    g.GrantedBy,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func grantFromModel(m *grantModel) *grant.Grant {
	gid, _ := id.ParseGrantID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &grant.Grant{
		ID:           gid,
		UserID:       m.UserID,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Actions:      m.Actions,
		Effect:       permission.Effect(m.Effect),
		ExpiresAt:    m.ExpiresAt,
		GrantedBy:    m.GrantedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Audit entry model
// ──────────────────────────────────────────────────

type auditModel struct {
	grove.BaseModel `grove:"table:keeper_audit_log"`
	ID              string         `grove:"id,pk"`
	Action          string         `grove:"action,notnull"`
	ActorID         string         `grove:"actor_id"`
	ActorIP         string         `grove:"actor_ip"`
	TargetType      string         `grove:"target_type"`
	TargetID        string         `grove:"target_id"`
	Details         map[string]any `grove:"details,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
}

func auditToModel(e *audit.Entry) *auditModel {
	return &auditModel{
		ID:         e.ID.String(),
		Action:     e.Action,
		ActorID:    e.ActorID,
		ActorIP:    e.ActorIP,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Details:    e.Details,
		CreatedAt:  e.CreatedAt,
	}
}

func auditFromModel(m *auditModel) *audit.Entry {
	aid, _ := id.ParseAuditID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &audit.Entry{
		ID:         aid,
		Action:     m.Action,
		ActorID:    m.ActorID,
		ActorIP:    m.ActorIP,
		TargetType: m.TargetType,
		TargetID:   m.TargetID,
		Details:    m.Details,
		CreatedAt:  m.CreatedAt,
	}
}
