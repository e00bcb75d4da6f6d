// Package assignment defines user-role assignments with optional scope and
// validity windows.
package assignment

import (
	"errors"
	"time"

	"github.com/crewbase/keeper/id"
)

// ErrNotFound is returned when an assignment cannot be found.
var ErrNotFound = errors.New("assignment not found")

// ScopeType names the kind of resource an assignment is scoped to. An empty
// scope type means the assignment applies everywhere.
type ScopeType string

// Supported scope types.
const (
	ScopeGlobal  ScopeType = ""
	ScopeProject ScopeType = "project"
	ScopeTeam    ScopeType = "team"
)

// Valid reports whether the scope type is one of the supported kinds.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeProject, ScopeTeam:
		return true
	default:
		return false
	}
}

// Scope narrows an assignment or a permission check to a single project or
// team. The zero value is the global scope.
type Scope struct {
	Type ScopeType `json:"type,omitempty"`
	ID   string    `json:"id,omitempty"`
}

// IsGlobal reports whether the scope is the global scope.
func (s Scope) IsGlobal() bool { return s.Type == ScopeGlobal }

// Valid reports whether the scope is well formed. A non-global scope must
// carry a resource ID and the global scope must not.
func (s Scope) Valid() bool {
	if !s.Type.Valid() {
		return false
	}
	if s.Type == ScopeGlobal {
		return s.ID == ""
	}
	return s.ID != ""
}

// Assignment binds a user to a role, optionally narrowed to a scope and a
// validity window. ValidUntil is exclusive; nil means no expiry.
type Assignment struct {
	ID         id.AssignmentID `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	RoleID     id.RoleID       `json:"role_id" db:"role_id"`
	ScopeType  ScopeType       `json:"scope_type,omitempty" db:"scope_type"`
	ScopeID    string          `json:"scope_id,omitempty" db:"scope_id"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil *time.Time      `json:"valid_until,omitempty" db:"valid_until"`
	AssignedBy string          `json:"assigned_by,omitempty" db:"assigned_by"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Scope returns the assignment's scope.
func (a *Assignment) Scope() Scope {
	return Scope{Type: a.ScopeType, ID: a.ScopeID}
}

// ValidAt reports whether the assignment is active at the given time. The
// window is [ValidFrom, ValidUntil).
func (a *Assignment) ValidAt(t time.Time) bool {
	if a.ValidFrom != nil && t.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && !t.Before(*a.ValidUntil) {
		return false
	}
	return true
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	UserID    string    `json:"user_id,omitempty"`
	RoleID    id.RoleID `json:"role_id,omitempty"`
	ScopeType ScopeType `json:"scope_type,omitempty"`
	ScopeID   string    `json:"scope_id,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}
