// Package audit defines the append-only audit trail written by every
// permission-affecting mutation.
package audit

import (
	"errors"
	"time"

	"github.com/crewbase/keeper/id"
)

// ErrNotFound is returned when an audit entry cannot be found.
var ErrNotFound = errors.New("audit entry not found")

// Mutation action names recorded in the trail.
const (
	ActionRoleCreated     = "role_created"
	ActionRoleDeleted     = "role_deleted"
	ActionRoleAssigned    = "role_assigned"
	ActionRoleRevoked     = "role_revoked"
	ActionResourceGranted = "resource_permission_granted"
	ActionResourceRevoked = "resource_permission_revoked"
)

// Entry is a single audit record. Entries are created, never mutated;
// retention/pruning is an external process.
type Entry struct {
	ID         id.AuditID     `json:"id" db:"id"`
	Action     string         `json:"action" db:"action"`
	ActorID    string         `json:"actor_id" db:"actor_id"`
	ActorIP    string         `json:"actor_ip,omitempty" db:"actor_ip"`
	TargetType string         `json:"target_type" db:"target_type"`
	TargetID   string         `json:"target_id" db:"target_id"`
	Details    map[string]any `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying the audit trail.
type QueryFilter struct {
	ActorID    string     `json:"actor_id,omitempty"`
	Action     string     `json:"action,omitempty"`
	TargetType string     `json:"target_type,omitempty"`
	TargetID   string     `json:"target_id,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}
