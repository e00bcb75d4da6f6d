package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/plugin"
	"github.com/crewbase/keeper/store"
)

// Engine is the central permission engine. It resolves role assignments and
// resource grants into decisions, manages the store, and fires plugin hooks.
type Engine struct {
	store   store.Store
	cache   Cache
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
	now     func() time.Time
}

// NewEngine creates a new Keeper engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("keeper: store is required")
	}
	if e.config.AuditQueryLimit <= 0 {
		e.config.AuditQueryLimit = DefaultConfig().AuditQueryLimit
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// Check performs a permission check. This is the hot path. Denies win over
// grants at every step, and any evaluation failure denies fail-closed with
// ErrEvaluationUnavailable.
func (e *Engine) Check(ctx context.Context, req *CheckRequest) (*CheckResult, error) {
	start := e.now()

	key, err := permission.ParseName(req.Permission)
	if err != nil {
		return nil, fmt.Errorf("keeper check: %w", err)
	}

	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, req)
	}

	result, err := e.evaluate(ctx, req, key)
	if err != nil {
		e.logger.Error("permission check unavailable",
			slog.String("user_id", req.UserID),
			slog.String("permission", req.Permission),
			slog.String("error", err.Error()),
		)
		result = &CheckResult{
			Decision: DecisionUnavailable,
			Reason:   "evaluation unavailable",
		}
		err = fmt.Errorf("%w: %v", ErrEvaluationUnavailable, err)
	}
	result.EvalTimeNs = e.now().Sub(start).Nanoseconds()

	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, req, result)
	}
	return result, err
}

// Enforce returns an error if the permission check is denied.
func (e *Engine) Enforce(ctx context.Context, req *CheckRequest) error {
	result, err := e.Check(ctx, req)
	if err != nil {
		return fmt.Errorf("keeper check: %w", err)
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s: %s", ErrAccessDenied, result.Decision, result.Reason)
	}
	return nil
}

// HasPermission is a shorthand for a check without a resource reference.
func (e *Engine) HasPermission(ctx context.Context, userID, permName string, scope Scope) (bool, error) {
	result, err := e.Check(ctx, &CheckRequest{
		UserID:     userID,
		Permission: permName,
		Scope:      scope,
	})
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// Can is a shorthand for a check against one specific resource. The required
// permission name is "resourceType.action".
func (e *Engine) Can(ctx context.Context, userID, action, resourceType, resourceID string) (bool, error) {
	result, err := e.Check(ctx, &CheckRequest{
		UserID:     userID,
		Permission: resourceType + "." + action,
		Resource:   &ResourceRef{Type: resourceType, ID: resourceID},
	})
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// GetUserPermissions returns the user's effective role-derived permission set
// in a scope. Resource grants are per-resource and not included.
func (e *Engine) GetUserPermissions(ctx context.Context, userID string, scope Scope) (*permission.Set, error) {
	set, err := e.resolveSet(ctx, userID, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluationUnavailable, err)
	}
	return set, nil
}

func (e *Engine) evaluate(ctx context.Context, req *CheckRequest, key permission.Key) (*CheckResult, error) {
	set, err := e.resolveSet(ctx, req.UserID, req.Scope)
	if err != nil {
		return nil, err
	}

	// 1. Role-level deny.
	if set.Denies(key) {
		return &CheckResult{
			Decision:  DecisionDenyExplicit,
			Reason:    "role denies " + key.Name(),
			MatchedBy: []MatchInfo{{Source: "role", Detail: "explicit deny"}},
		}, nil
	}

	// 2. Direct resource grants, denies first.
	if req.Resource != nil && req.Resource.Type == key.Resource {
		grants, err := e.store.ListGrantsForResource(ctx, req.UserID, req.Resource.Type, req.Resource.ID, e.now().UTC())
		if err != nil {
			return nil, err
		}
		action := string(key.Action)
		for _, g := range grants {
			if g.Effect == permission.EffectDeny && g.HasAction(action) {
				return &CheckResult{
					Decision:  DecisionDenyExplicit,
					Reason:    "resource grant denies " + action,
					MatchedBy: []MatchInfo{{Source: "resource", RuleID: g.ID.String(), Detail: "explicit deny"}},
				}, nil
			}
		}
		for _, g := range grants {
			if g.Effect == permission.EffectGrant && g.HasAction(action) {
				return &CheckResult{
					Allowed:   true,
					Decision:  DecisionAllowResource,
					MatchedBy: []MatchInfo{{Source: "resource", RuleID: g.ID.String(), Detail: "grants " + action}},
				}, nil
			}
		}
	}

	// 3. Role-level grant, with wildcard coverage.
	if set.Grants(key) {
		return &CheckResult{
			Allowed:   true,
			Decision:  DecisionAllowRole,
			MatchedBy: []MatchInfo{{Source: "role", Detail: "role grants " + key.Name()}},
		}, nil
	}

	// 4. Default deny.
	if set.Len() == 0 {
		return &CheckResult{
			Decision: DecisionDenyNoRoles,
			Reason:   "user has no role permissions in scope",
		}, nil
	}
	return &CheckResult{
		Decision: DecisionDenyDefault,
		Reason:   "no role or grant matches " + key.Name(),
	}, nil
}

// resolveSet builds the user's effective permission set for a scope from
// their active assignments, consulting the cache first.
func (e *Engine) resolveSet(ctx context.Context, userID string, scope Scope) (*permission.Set, error) {
	if e.cache != nil {
		if set, ok := e.cache.Get(ctx, userID, scope); ok {
			return set, nil
		}
	}

	asgns, err := e.store.ListAssignmentsForUser(ctx, userID, e.now().UTC(), scope)
	if err != nil {
		return nil, err
	}

	set := permission.NewSet()
	seen := make(map[string]struct{}, len(asgns))
	for _, a := range asgns {
		rk := a.RoleID.String()
		if _, ok := seen[rk]; ok {
			continue
		}
		seen[rk] = struct{}{}

		grants, err := e.store.ListPermissionGrants(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		if len(grants) == 0 {
			continue
		}
		perms, err := e.store.ListPermissionsByRole(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]permission.Key, len(perms))
		for _, p := range perms {
			byID[p.ID.String()] = p.Key
		}
		for _, g := range grants {
			key, ok := byID[g.PermissionID.String()]
			if !ok {
				continue
			}
			set.Add(key, g.Effect)
		}
	}

	if e.cache != nil {
		e.cache.Set(ctx, userID, scope, set)
	}
	return set, nil
}
