package keeper

import "time"

// Config holds configuration for the Keeper engine.
type Config struct {
	// CacheTTL is the time-to-live for cached permission sets.
	// Zero means cache entries never expire by age.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// AuditQueryLimit is the default page size for audit trail queries
	// that do not set a limit. Defaults to 100.
	AuditQueryLimit int `json:"audit_query_limit,omitempty"`

	// StrictCatalog requires every permission name referenced by CreateRole
	// to exist in the catalog. Defaults to true.
	StrictCatalog *bool `json:"strict_catalog,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		CacheTTL:        5 * time.Minute,
		AuditQueryLimit: 100,
		StrictCatalog:   &t,
	}
}

func (c Config) strictCatalog() bool { return c.StrictCatalog == nil || *c.StrictCatalog }
