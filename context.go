package keeper

import (
	"context"

	"github.com/xraph/forge"
)

type contextKey int

const (
	ctxKeyActorIP contextKey = iota
	ctxKeyActorID
)

// WithActorIP returns a context carrying the caller's IP address. Mutating
// operations record it in the audit trail.
func WithActorIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyActorIP, ip)
}

// WithActorID returns a context carrying the acting user's ID. Used as a
// fallback when a mutating request does not set ActorID explicitly.
// Use this for standalone mode (without Forge).
func WithActorID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyActorID, userID)
}

func actorIPFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyActorIP).(string)
	if !ok {
		return ""
	}
	return v
}

// actorIDFromContext resolves the acting user from the forge request context
// or the standalone context value.
func actorIDFromContext(ctx context.Context) string {
	if uid := forge.UserIDFromContext(ctx); uid != "" {
		return uid
	}
	v, ok := ctx.Value(ctxKeyActorID).(string)
	if !ok {
		return ""
	}
	return v
}
