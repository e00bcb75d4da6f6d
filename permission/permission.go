// Package permission defines the permission catalog: the Permission entity,
// the structured Key identity with wildcard coverage, and the grant/deny Set
// used by the evaluator.
package permission

import (
	"errors"
	"time"

	"github.com/crewbase/keeper/id"
)

// ErrNotFound is returned when a permission cannot be found.
var ErrNotFound = errors.New("permission not found")

// Effect states whether a permission entry grants or denies access.
type Effect string

const (
	// EffectGrant allows the covered actions.
	EffectGrant Effect = "grant"

	// EffectDeny blocks the covered actions. A covering deny defeats every
	// grant regardless of source.
	EffectDeny Effect = "deny"
)

// Permission represents one catalog entry: a specific action (or wildcard)
// on a resource type.
type Permission struct {
	ID          id.PermissionID `json:"id" db:"id"`
	Key         Key             `json:"key" db:"-"`
	Category    string          `json:"category" db:"category"`
	Description string          `json:"description,omitempty" db:"description"`
	IsSystem    bool            `json:"is_system" db:"is_system"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Name returns the dotted catalog name of the permission.
func (p *Permission) Name() string { return p.Key.Name() }

// ListFilter contains filters for listing catalog permissions.
type ListFilter struct {
	Resource string `json:"resource,omitempty"`
	Category string `json:"category,omitempty"`
	IsSystem *bool  `json:"is_system,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
