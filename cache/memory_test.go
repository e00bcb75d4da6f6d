package cache

import (
	"context"
	"testing"
	"time"

	"github.com/crewbase/keeper"
	"github.com/crewbase/keeper/permission"
)

func testSet(names ...string) *permission.Set {
	s := permission.NewSet()
	for _, n := range names {
		s.Add(permission.MustParseName(n), permission.EffectGrant)
	}
	return s
}

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	scope := keeper.ProjectScope("proj_1")

	// Miss
	if _, ok := c.Get(ctx, "u1", scope); ok {
		t.Fatal("expected cache miss")
	}

	// Set + Hit
	c.Set(ctx, "u1", scope, testSet("task.create"))
	got, ok := c.Get(ctx, "u1", scope)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Grants(permission.MustParseName("task.create")) {
		t.Fatal("expected task.create in cached set")
	}

	// A different scope is a separate entry.
	if _, ok := c.Get(ctx, "u1", keeper.GlobalScope()); ok {
		t.Fatal("expected miss for different scope")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(1 * time.Millisecond))

	c.Set(ctx, "u1", keeper.GlobalScope(), testSet("task.read"))
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "u1", keeper.GlobalScope()); ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestMemoryCacheInvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

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

func TestMemoryCacheFlush(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

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

func TestMemoryCacheMaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(2))

	for i := 0; i < 5; i++ {
		c.Set(ctx, "u1", keeper.ProjectScope(string(rune('a'+i))), testSet("task.read"))
	}

	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	if size > 2 {
		t.Fatalf("expected max 2 entries, got %d", size)
	}
}
