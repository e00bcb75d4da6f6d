package assignment

import (
	"context"
	"time"

	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/id"
)

// Store defines persistence operations for role assignments. Mutations take
// the audit entry and persist it in the same unit of work.
type Store interface {
	// CreateAssignment persists a new assignment and the audit entry.
	CreateAssignment(ctx context.Context, a *Assignment, log *audit.Entry) error

	// GetAssignment retrieves an assignment by ID.
	GetAssignment(ctx context.Context, asgnID id.AssignmentID) (*Assignment, error)

	// FindAssignment retrieves the assignment matching the exact
	// (user, role, scope) binding, expired or not.
	FindAssignment(ctx context.Context, userID string, roleID id.RoleID, scope Scope) (*Assignment, error)

	// DeleteAssignmentByBinding removes the assignment matching the exact
	// binding, recording the audit entry in the same unit of work. Returns
	// the number of assignments removed.
	DeleteAssignmentByBinding(ctx context.Context, userID string, roleID id.RoleID, scope Scope, log *audit.Entry) (int64, error)

	// ListAssignmentsForUser returns the user's assignments that are valid
	// at the given time and visible in the given scope. Global assignments
	// are always included; scoped assignments only when the scope matches.
	ListAssignmentsForUser(ctx context.Context, userID string, at time.Time, scope Scope) ([]*Assignment, error)

	// ListAssignments returns assignments matching the filter.
	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)

	// CountAssignments returns the number of assignments matching the filter.
	CountAssignments(ctx context.Context, filter *ListFilter) (int64, error)

	// DeleteAssignmentsByRole removes all assignments referencing a role.
	DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) (int64, error)

	// DeleteExpiredAssignments removes assignments whose validity window
	// ended before the given time. Intended for the external retention
	// process.
	DeleteExpiredAssignments(ctx context.Context, before time.Time) (int64, error)
}
