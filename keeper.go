// Package keeper provides role-based permission evaluation for Go services.
//
// Keeper answers "may user U perform action A?" from three inputs: the
// permission catalog, role assignments (optionally scoped to a project or
// team and bounded by a validity window), and direct per-resource grants.
// Explicit denies always win over grants, and evaluation fails closed.
//
//	eng, err := keeper.NewEngine(
//	    keeper.WithStore(memStore),
//	)
//	result, err := eng.Check(ctx, &keeper.CheckRequest{
//	    UserID:     "user_123",
//	    Permission: "task.update",
//	    Resource:   &keeper.ResourceRef{Type: "task", ID: "task_456"},
//	})
package keeper

// ResourceRef identifies one specific resource instance in a check.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CheckRequest is the input to a permission check.
type CheckRequest struct {
	UserID     string       `json:"user_id"`
	Permission string       `json:"permission"`
	Resource   *ResourceRef `json:"resource,omitempty"`
	Scope      Scope        `json:"scope,omitempty"`
}

// CheckResult is the outcome of a permission check.
type CheckResult struct {
	Allowed    bool        `json:"allowed"`
	Decision   Decision    `json:"decision"`
	Reason     string      `json:"reason,omitempty"`
	MatchedBy  []MatchInfo `json:"matched_by,omitempty"`
	EvalTimeNs int64       `json:"eval_time_ns"`
}

// Decision is the permission check outcome.
type Decision string

const (
	// DecisionAllowRole means a role permission granted the request.
	DecisionAllowRole Decision = "allow_role"

	// DecisionAllowResource means a direct resource grant allowed the request.
	DecisionAllowResource Decision = "allow_resource"

	// DecisionDenyExplicit means an explicit deny matched.
	DecisionDenyExplicit Decision = "deny_explicit"

	// DecisionDenyDefault means nothing granted the required permission.
	DecisionDenyDefault Decision = "deny_default"

	// DecisionDenyNoRoles means the user has no active role permissions
	// in the requested scope.
	DecisionDenyNoRoles Decision = "deny_no_roles"

	// DecisionUnavailable means evaluation could not complete and the
	// request was denied fail-closed.
	DecisionUnavailable Decision = "unavailable"
)

// MatchInfo describes what rule decided a check.
type MatchInfo struct {
	Source string `json:"source"` // "role", "resource"
	RuleID string `json:"rule_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}
