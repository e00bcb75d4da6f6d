// Package cache provides caching implementations for resolved permission
// sets, keyed by user and scope.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/crewbase/keeper"
	"github.com/crewbase/keeper/permission"
)

// Compile-time interface check.
var _ keeper.Cache = (*Memory)(nil)

// keySep separates key components. It cannot occur in user or scope IDs.
const keySep = "\x1f"

// Memory is an in-memory cache with TTL-based expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
}

type entry struct {
	set       *permission.Set
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached permission set for a user in a scope.
func (m *Memory) Get(_ context.Context, userID string, scope keeper.Scope) (*permission.Set, bool) {
	key := cacheKey(userID, scope)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.set, true
}

// Set stores the resolved permission set for a user in a scope.
func (m *Memory) Set(_ context.Context, userID string, scope keeper.Scope, set *permission.Set) {
	key := cacheKey(userID, scope)
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOne()
		}
	}

	m.entries[key] = &entry{
		set:       set,
		expiresAt: time.Now().Add(m.ttl),
	}
}

// InvalidateUser removes all cached sets for a user, across scopes.
func (m *Memory) InvalidateUser(_ context.Context, userID string) {
	prefix := userID + keySep
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
}

// Flush removes all cached sets.
func (m *Memory) Flush(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
}

func cacheKey(userID string, scope keeper.Scope) string {
	return userID + keySep + string(scope.Type) + keySep + scope.ID
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}
