package audit

import (
	"context"
	"time"

	"github.com/crewbase/keeper/id"
)

// Store defines persistence operations for the audit trail. Mutation audit
// entries are normally written by the mutating store call itself so the
// mutation and its record commit together; RecordEntry exists for callers
// that audit outside that path.
type Store interface {
	// RecordEntry appends an audit entry.
	RecordEntry(ctx context.Context, e *Entry) error

	// GetEntry retrieves an audit entry by ID.
	GetEntry(ctx context.Context, auditID id.AuditID) (*Entry, error)

	// ListEntries returns audit entries matching the filter, newest first.
	ListEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountEntries returns the number of entries matching the filter.
	CountEntries(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeEntries removes entries created before the given time. Intended
	// for the external retention process, never the engine.
	PurgeEntries(ctx context.Context, before time.Time) (int64, error)
}
