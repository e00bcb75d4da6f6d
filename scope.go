package keeper

import "github.com/crewbase/keeper/assignment"

// Scope narrows a check or an assignment to a single project or team.
// The zero value is the global scope.
type Scope = assignment.Scope

// GlobalScope returns the global scope.
func GlobalScope() Scope { return Scope{} }

// ProjectScope returns a scope narrowed to one project.
func ProjectScope(projectID string) Scope {
	return Scope{Type: assignment.ScopeProject, ID: projectID}
}

// TeamScope returns a scope narrowed to one team.
func TeamScope(teamID string) Scope {
	return Scope{Type: assignment.ScopeTeam, ID: teamID}
}
