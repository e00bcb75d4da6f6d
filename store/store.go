// Package store defines the composite persistence interface implemented by
// the memory, postgres, sqlite, and mongo backends.
package store

import (
	"context"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
)

// Store is the full persistence surface required by the engine.
type Store interface {
	role.Store
	permission.Store
	assignment.Store
	grant.Store
	audit.Store

	// Migrate creates or updates the backing schema.
	Migrate(ctx context.Context) error

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
