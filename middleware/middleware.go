// Package middleware provides HTTP authorization middleware for Keeper.
package middleware

import (
	"encoding/json"

	"github.com/xraph/forge"

	"github.com/crewbase/keeper"
)

// Require enforces a single permission. It resolves the user from the
// request context and, when resourceType is non-empty, checks against the
// concrete resource identified by the "id" route parameter.
func Require(eng *keeper.Engine, permName, resourceType string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			req := &keeper.CheckRequest{
				UserID:     resolveUser(ctx),
				Permission: permName,
			}
			if resourceType != "" {
				req.Resource = &keeper.ResourceRef{Type: resourceType, ID: ctx.Param("id")}
			}

			if err := eng.Enforce(ctx.Context(), req); err != nil {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

// RequireInProject enforces a permission within the project identified by
// the "project_id" route parameter. Global role assignments still apply.
func RequireInProject(eng *keeper.Engine, permName string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			req := &keeper.CheckRequest{
				UserID:     resolveUser(ctx),
				Permission: permName,
				Scope:      keeper.ProjectScope(ctx.Param("project_id")),
			}
			if err := eng.Enforce(ctx.Context(), req); err != nil {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if ANY of the checks pass.
func RequireAny(eng *keeper.Engine, checks ...keeper.CheckRequest) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			userID := resolveUser(ctx)
			for i := range checks {
				c := checks[i]
				c.UserID = userID
				result, err := eng.Check(ctx.Context(), &c)
				if err == nil && result.Allowed {
					return next(ctx)
				}
			}
			return denyResponse(ctx)
		}
	}
}

// RequireAll allows the request only if ALL checks pass.
func RequireAll(eng *keeper.Engine, checks ...keeper.CheckRequest) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			userID := resolveUser(ctx)
			for i := range checks {
				c := checks[i]
				c.UserID = userID
				if err := eng.Enforce(ctx.Context(), &c); err != nil {
					return denyResponse(ctx)
				}
			}
			return next(ctx)
		}
	}
}

// resolveUser extracts the authenticated user from context. Anonymous
// requests check as the empty user and fall through to default deny.
func resolveUser(ctx forge.Context) string {
	return forge.UserIDFromContext(ctx.Context())
}

func denyResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(403)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": "access denied"})
}
