// Package role defines the Role entity and its store interface.
package role

import (
	"errors"
	"time"

	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
)

// ErrNotFound is returned when a role cannot be found.
var ErrNotFound = errors.New("role not found")

// Level is the tier label of a role. Levels are presentation metadata; they
// carry no implicit permission ordering.
type Level string

// Built-in role levels.
const (
	LevelOrgAdmin Level = "org_admin"
	LevelAdmin    Level = "admin"
	LevelManager  Level = "manager"
	LevelMember   Level = "member"
	LevelGuest    Level = "guest"
)

// Valid reports whether the level is one of the known tiers.
func (l Level) Valid() bool {
	switch l {
	case LevelOrgAdmin, LevelAdmin, LevelManager, LevelMember, LevelGuest:
		return true
	default:
		return false
	}
}

// Role represents a named bundle of permission grants that can be assigned
// to users globally or scoped to a project/team.
type Role struct {
	ID          id.RoleID `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id,omitempty" db:"workspace_id"` // "" = global
	Name        string    `json:"name" db:"name"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Description string    `json:"description,omitempty" db:"description"`
	Level       Level     `json:"level" db:"level"`
	IsSystem    bool      `json:"is_system" db:"is_system"`
	IsDefault   bool      `json:"is_default" db:"is_default"`
	CreatedBy   string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PermissionGrant attaches a catalog permission to a role with an effect.
// Unique on (RoleID, PermissionID).
type PermissionGrant struct {
	RoleID       id.RoleID         `json:"role_id" db:"role_id"`
	PermissionID id.PermissionID   `json:"permission_id" db:"permission_id"`
	Effect       permission.Effect `json:"effect" db:"effect"`
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	WorkspaceID   string `json:"workspace_id,omitempty"`
	IncludeGlobal bool   `json:"include_global,omitempty"`
	Level         Level  `json:"level,omitempty"`
	IsSystem      *bool  `json:"is_system,omitempty"`
	IsDefault     *bool  `json:"is_default,omitempty"`
	Search        string `json:"search,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}
