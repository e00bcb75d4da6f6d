// Package grant defines direct per-resource permission grants for users.
package grant

import (
	"errors"
	"time"

	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
)

// ErrNotFound is returned when a resource grant cannot be found.
var ErrNotFound = errors.New("resource grant not found")

// Grant gives a user a set of actions on one specific resource, bypassing
// roles. A grant row is unique on (user, resource type, resource ID, effect);
// granting again unions the action sets. ExpiresAt nil means no expiry.
type Grant struct {
	ID           id.GrantID        `json:"id" db:"id"`
	UserID       string            `json:"user_id" db:"user_id"`
	ResourceType string            `json:"resource_type" db:"resource_type"`
	ResourceID   string            `json:"resource_id" db:"resource_id"`
	Actions      []string          `json:"actions" db:"actions"`
	Effect       permission.Effect `json:"effect" db:"effect"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	GrantedBy    string            `json:"granted_by,omitempty" db:"granted_by"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the grant has expired at the given time.
func (g *Grant) Expired(at time.Time) bool {
	return g.ExpiresAt != nil && !at.Before(*g.ExpiresAt)
}

// HasAction reports whether the grant's action set contains the action.
func (g *Grant) HasAction(action string) bool {
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}
