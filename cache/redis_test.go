package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/crewbase/keeper"
	"github.com/crewbase/keeper/permission"
)

func newRedisCache(t *testing.T, opts ...RedisOption) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, opts...)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newRedisCache(t, WithRedisTTL(time.Minute))

	scope := keeper.ProjectScope("proj_1")
	set := permission.NewSet()
	set.Add(permission.MustParseName("task.*"), permission.EffectGrant)
	set.Add(permission.MustParseName("expense.approve"), permission.EffectDeny)

	if _, ok := c.Get(ctx, "u1", scope); ok {
		t.Fatal("expected cache miss")
	}

	c.Set(ctx, "u1", scope, set)
	got, ok := c.Get(ctx, "u1", scope)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Grants(permission.MustParseName("task.delete")) {
		t.Fatal("wildcard grant lost in round trip")
	}
	if !got.Denies(permission.MustParseName("expense.approve")) {
		t.Fatal("deny lost in round trip")
	}
}

func TestRedisCacheInvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := newRedisCache(t)

	c.Set(ctx, "u1", keeper.GlobalScope(), testSet("task.read"))
	c.Set(ctx, "u1", keeper.ProjectScope("p1"), testSet("task.update"))
	c.Set(ctx, "u2", keeper.GlobalScope(), testSet("task.read"))

	c.InvalidateUser(ctx, "u1")

	if _, ok := c.Get(ctx, "u1", keeper.GlobalScope()); ok {
		t.Fatal("u1 global should be invalidated")
	}
	if _, ok := c.Get(ctx, "u1", keeper.ProjectScope("p1")); ok {
		t.Fatal("u1 scoped should be invalidated")
	}
	if _, ok := c.Get(ctx, "u2", keeper.GlobalScope()); !ok {
		t.Fatal("u2 should still be cached")
	}
}

func TestRedisCacheKeysTolerateColons(t *testing.T) {
	ctx := context.Background()
	c := newRedisCache(t)

	// "alice" is a prefix of "alice:ops"; the separator keeps their keys
	// apart even when IDs contain colons.
	c.Set(ctx, "alice", keeper.GlobalScope(), testSet("task.read"))
	c.Set(ctx, "alice:ops", keeper.GlobalScope(), testSet("task.update"))
	c.Set(ctx, "alice", keeper.ProjectScope("p:1"), testSet("task.delete"))

	got, ok := c.Get(ctx, "alice", keeper.GlobalScope())
	if !ok || !got.Grants(permission.MustParseName("task.read")) {
		t.Fatal("alice global entry collided with another key")
	}

	c.InvalidateUser(ctx, "alice")

	if _, ok := c.Get(ctx, "alice", keeper.GlobalScope()); ok {
		t.Fatal("alice global should be invalidated")
	}
	if _, ok := c.Get(ctx, "alice", keeper.ProjectScope("p:1")); ok {
		t.Fatal("alice scoped should be invalidated")
	}
	if _, ok := c.Get(ctx, "alice:ops", keeper.GlobalScope()); !ok {
		t.Fatal("alice:ops should still be cached")
	}
}

func TestRedisCacheFlush(t *testing.T) {
	ctx := context.Background()
	c := newRedisCache(t)

	c.Set(ctx, "u1", keeper.GlobalScope(), testSet("task.read"))
	c.Set(ctx, "u2", keeper.TeamScope("t1"), testSet("task.read"))

	c.Flush(ctx)

	if _, ok := c.Get(ctx, "u1", keeper.GlobalScope()); ok {
		t.Fatal("u1 should be flushed")
	}
	if _, ok := c.Get(ctx, "u2", keeper.TeamScope("t1")); ok {
		t.Fatal("u2 should be flushed")
	}
}
