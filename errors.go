package keeper

import (
	"errors"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
)

// Entity not-found sentinels, re-exported so callers can match them without
// importing every entity package.
var (
	// ErrRoleNotFound is returned when a role cannot be found.
	ErrRoleNotFound = role.ErrNotFound

	// ErrPermissionNotFound is returned when a catalog permission cannot be found.
	ErrPermissionNotFound = permission.ErrNotFound

	// ErrAssignmentNotFound is returned when an assignment cannot be found.
	ErrAssignmentNotFound = assignment.ErrNotFound

	// ErrGrantNotFound is returned when a resource grant cannot be found.
	ErrGrantNotFound = grant.ErrNotFound

	// ErrInvalidPermissionName is returned when a permission name is malformed.
	ErrInvalidPermissionName = permission.ErrInvalidName
)

var (
	// ErrAccessDenied is returned by Enforce when a check is denied.
	ErrAccessDenied = errors.New("keeper: access denied")

	// ErrDuplicateRole is returned when a role name already exists in the
	// workspace.
	ErrDuplicateRole = errors.New("keeper: role name already exists")

	// ErrDuplicateAssignment is returned when the user already holds the role
	// in the same scope.
	ErrDuplicateAssignment = errors.New("keeper: role already assigned to user")

	// ErrDefaultRoleExists is returned when a second default role is created
	// for a workspace.
	ErrDefaultRoleExists = errors.New("keeper: workspace already has a default role")

	// ErrSystemRoleImmutable is returned when trying to modify or delete a
	// system role.
	ErrSystemRoleImmutable = errors.New("keeper: system role cannot be modified")

	// ErrInvalidScope is returned when an assignment scope is malformed.
	ErrInvalidScope = errors.New("keeper: invalid scope")

	// ErrInvalidValidity is returned when a validity window ends before it
	// starts.
	ErrInvalidValidity = errors.New("keeper: validity window ends before it starts")

	// ErrInvalidRoleLevel is returned when a role level is not a known tier.
	ErrInvalidRoleLevel = errors.New("keeper: invalid role level")

	// ErrEmptyActions is returned when a resource grant carries no actions.
	ErrEmptyActions = errors.New("keeper: resource grant requires at least one action")

	// ErrEvaluationUnavailable is returned when a check cannot be evaluated;
	// the request is denied fail-closed.
	ErrEvaluationUnavailable = errors.New("keeper: evaluation unavailable")
)
