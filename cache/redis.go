package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewbase/keeper"
	"github.com/crewbase/keeper/permission"
)

// Compile-time interface check.
var _ keeper.Cache = (*Redis)(nil)

// Redis caches permission sets in Redis so multiple service instances share
// one view of resolved permissions. Redis failures degrade to cache misses;
// the engine then resolves from the store.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// redisPayload is the wire form of a permission set.
type redisPayload struct {
	Grants []string `json:"grants"`
	Denies []string `json:"denies"`
}

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithRedisTTL sets the cache entry time-to-live.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithKeyPrefix sets the Redis key prefix. Defaults to "keeper:set:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisLogger sets the structured logger.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// NewRedis creates a Redis-backed cache on an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    5 * time.Minute,
		prefix: "keeper:set:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the cached permission set for a user in a scope.
func (r *Redis) Get(ctx context.Context, userID string, scope keeper.Scope) (*permission.Set, bool) {
	raw, err := r.client.Get(ctx, r.key(userID, scope)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("redis cache get failed", slog.String("error", err.Error()))
		return nil, false
	}

	var payload redisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.logger.Warn("redis cache payload corrupt", slog.String("error", err.Error()))
		return nil, false
	}

	set := permission.NewSet()
	for _, name := range payload.Grants {
		key, err := permission.ParseName(name)
		if err != nil {
			return nil, false
		}
		set.Add(key, permission.EffectGrant)
	}
	for _, name := range payload.Denies {
		key, err := permission.ParseName(name)
		if err != nil {
			return nil, false
		}
		set.Add(key, permission.EffectDeny)
	}
	return set, true
}

// Set stores the resolved permission set for a user in a scope.
func (r *Redis) Set(ctx context.Context, userID string, scope keeper.Scope, set *permission.Set) {
	payload := redisPayload{
		Grants: set.GrantNames(),
		Denies: set.DenyNames(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("redis cache marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := r.client.Set(ctx, r.key(userID, scope), raw, r.ttl).Err(); err != nil {
		r.logger.Warn("redis cache set failed", slog.String("error", err.Error()))
	}
}

// InvalidateUser removes all cached sets for a user, across scopes.
func (r *Redis) InvalidateUser(ctx context.Context, userID string) {
	r.deletePattern(ctx, r.prefix+userID+keySep+"*")
}

// Flush removes all cached sets under the configured prefix.
func (r *Redis) Flush(ctx context.Context) {
	r.deletePattern(ctx, r.prefix+"*")
}

func (r *Redis) deletePattern(ctx context.Context, pattern string) {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("redis cache scan failed", slog.String("error", err.Error()))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("redis cache delete failed", slog.String("error", err.Error()))
	}
}

// key mirrors the memory cache layout: keySep cannot occur in user or scope
// IDs, so one user's keys never collide with another's.
func (r *Redis) key(userID string, scope keeper.Scope) string {
	return r.prefix + userID + keySep + string(scope.Type) + keySep + scope.ID
}
