package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
	"github.com/crewbase/keeper/store/memory"
)

// mapCache is a minimal Cache used to verify invalidation behavior. The real
// backends live in the cache package, which sits on top of this one.
type mapCache struct {
	entries map[string]*permission.Set
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*permission.Set)}
}

func (c *mapCache) key(userID string, scope Scope) string {
	return userID + "|" + string(scope.Type) + "|" + scope.ID
}

func (c *mapCache) Get(_ context.Context, userID string, scope Scope) (*permission.Set, bool) {
	set, ok := c.entries[c.key(userID, scope)]
	return set, ok
}

func (c *mapCache) Set(_ context.Context, userID string, scope Scope, set *permission.Set) {
	c.entries[c.key(userID, scope)] = set
}

func (c *mapCache) InvalidateUser(_ context.Context, userID string) {
	for k := range c.entries {
		if len(k) > len(userID) && k[:len(userID)+1] == userID+"|" {
			delete(c.entries, k)
		}
	}
}

func (c *mapCache) Flush(context.Context) {
	c.entries = make(map[string]*permission.Set)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

func seedCatalog(t *testing.T, s *memory.Store, names ...string) {
	t.Helper()
	now := time.Now().UTC()
	for _, name := range names {
		p := &permission.Permission{
			ID:        id.NewPermissionID(),
			Key:       permission.MustParseName(name),
			Category:  "test",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreatePermission(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
}

func createRole(t *testing.T, eng *Engine, name string, perms, denies []string) *role.Role {
	t.Helper()
	r, err := eng.CreateRole(context.Background(), &CreateRoleRequest{
		Name:        name,
		Level:       role.LevelMember,
		Permissions: perms,
		Denies:      denies,
		ActorID:     "admin_1",
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func assignRole(t *testing.T, eng *Engine, userID string, roleID id.RoleID, scope Scope) {
	t.Helper()
	_, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID:  userID,
		RoleID:  roleID,
		Scope:   scope,
		ActorID: "admin_1",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func mustAllow(t *testing.T, eng *Engine, userID, perm string, scope Scope) {
	t.Helper()
	ok, err := eng.HasPermission(context.Background(), userID, perm, scope)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected %s allowed %q in scope %+v", userID, perm, scope)
	}
}

func mustDeny(t *testing.T, eng *Engine, userID, perm string, scope Scope) {
	t.Helper()
	ok, err := eng.HasPermission(context.Background(), userID, perm, scope)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected %s denied %q in scope %+v", userID, perm, scope)
	}
}

func TestNewEngine_RequiresStore(t *testing.T) {
	if _, err := NewEngine(); err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestGlobalAssignmentGrantsEverywhere(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.create")

	r := createRole(t, eng, "creator", []string{"task.create"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	mustAllow(t, eng, "u1", "task.create", GlobalScope())
	mustAllow(t, eng, "u1", "task.create", ProjectScope("p1"))
	mustAllow(t, eng, "u1", "task.create", TeamScope("team9"))
}

func TestScopedAssignmentLimitedToItsScope(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.*")

	r := createRole(t, eng, "project_manager", []string{"task.*"}, nil)
	assignRole(t, eng, "u1", r.ID, ProjectScope("p1"))

	mustAllow(t, eng, "u1", "task.update", ProjectScope("p1"))
	mustDeny(t, eng, "u1", "task.update", ProjectScope("p2"))
	mustDeny(t, eng, "u1", "task.update", GlobalScope())
	mustDeny(t, eng, "u1", "task.update", TeamScope("p1"))
}

func TestAssignmentValidityWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng, s := newTestEngine(t, WithClock(func() time.Time { return now }))
	seedCatalog(t, s, "task.read")

	r := createRole(t, eng, "reader", []string{"task.read"}, nil)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	// Expired yesterday: never grants.
	if _, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID: "expired", RoleID: r.ID, ValidUntil: &past,
	}); err != nil {
		t.Fatal(err)
	}
	mustDeny(t, eng, "expired", "task.read", GlobalScope())

	// Not yet valid.
	if _, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID: "early", RoleID: r.ID, ValidFrom: &future,
	}); err != nil {
		t.Fatal(err)
	}
	mustDeny(t, eng, "early", "task.read", GlobalScope())

	// Currently inside the window.
	if _, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID: "active", RoleID: r.ID, ValidFrom: &past, ValidUntil: &future,
	}); err != nil {
		t.Fatal(err)
	}
	mustAllow(t, eng, "active", "task.read", GlobalScope())

	// valid_until is exclusive: at the boundary the assignment is expired.
	if _, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID: "boundary", RoleID: r.ID, ValidUntil: &now,
	}); err != nil {
		t.Fatal(err)
	}
	mustDeny(t, eng, "boundary", "task.read", GlobalScope())
}

func TestListUserRolesScopedAndTimeValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng, s := newTestEngine(t, WithClock(func() time.Time { return now }))
	seedCatalog(t, s, "task.read")
	ctx := context.Background()

	global := createRole(t, eng, "global_reader", []string{"task.read"}, nil)
	expired := createRole(t, eng, "former_reader", []string{"task.read"}, nil)
	scoped := createRole(t, eng, "p1_reader", []string{"task.read"}, nil)

	past := now.Add(-time.Hour)
	assignRole(t, eng, "u1", global.ID, GlobalScope())
	if _, err := eng.AssignRole(ctx, &AssignRoleRequest{
		UserID: "u1", RoleID: expired.ID, ValidUntil: &past,
	}); err != nil {
		t.Fatal(err)
	}
	assignRole(t, eng, "u1", scoped.ID, ProjectScope("p1"))

	// Global view: only the active global assignment.
	views, err := eng.ListUserRoles(ctx, "u1", GlobalScope())
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("global view: got %d assignments, want 1", len(views))
	}
	if views[0].Role.Name != "global_reader" {
		t.Errorf("global view role = %q, want global_reader", views[0].Role.Name)
	}

	// Project view: the global assignment plus the p1-scoped one, never the
	// expired row.
	views, err = eng.ListUserRoles(ctx, "u1", ProjectScope("p1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("p1 view: got %d assignments, want 2", len(views))
	}
	names := map[string]bool{}
	for _, v := range views {
		names[v.Role.Name] = true
	}
	if !names["global_reader"] || !names["p1_reader"] {
		t.Errorf("p1 view roles = %v, want global_reader and p1_reader", names)
	}

	// A different project sees only the global assignment.
	views, err = eng.ListUserRoles(ctx, "u1", ProjectScope("p2"))
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].Role.Name != "global_reader" {
		t.Fatalf("p2 view: got %d assignments, want only global_reader", len(views))
	}
}

func TestAssignRole_RejectsInvertedWindow(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.read")
	r := createRole(t, eng, "reader", []string{"task.read"}, nil)

	from := time.Now().UTC()
	until := from.Add(-time.Hour)
	_, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID: "u1", RoleID: r.ID, ValidFrom: &from, ValidUntil: &until,
	})
	if !errors.Is(err, ErrInvalidValidity) {
		t.Fatalf("expected ErrInvalidValidity, got %v", err)
	}
}

func TestWildcardCoverage(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.*")

	r := createRole(t, eng, "task_admin", []string{"task.*"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	for _, perm := range []string{"task.create", "task.update", "task.delete"} {
		mustAllow(t, eng, "u1", perm, GlobalScope())
	}
	mustDeny(t, eng, "u1", "project.read", GlobalScope())
}

func TestUniversalWildcard(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "*")

	r := createRole(t, eng, "root", []string{"*"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	mustAllow(t, eng, "u1", "task.delete", GlobalScope())
	mustAllow(t, eng, "u1", "workspace.manage_billing", ProjectScope("p1"))
}

func TestDenyOverridesGrant(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.*", "task.delete")

	r := createRole(t, eng, "limited_admin", []string{"task.*"}, []string{"task.delete"})
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	mustAllow(t, eng, "u1", "task.update", GlobalScope())

	result, err := eng.Check(context.Background(), &CheckRequest{UserID: "u1", Permission: "task.delete"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Fatal("expected explicit deny to win over wildcard grant")
	}
	if result.Decision != DecisionDenyExplicit {
		t.Fatalf("expected deny_explicit, got %s", result.Decision)
	}
}

func TestRoleDenyBlocksResourceGrant(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.delete")

	r := createRole(t, eng, "no_delete", nil, []string{"task.delete"})
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	if _, err := eng.GrantResourcePermission(context.Background(), &GrantResourceRequest{
		UserID: "u1", ResourceType: "task", ResourceID: "t1", Actions: []string{"delete"}, ActorID: "admin_1",
	}); err != nil {
		t.Fatal(err)
	}

	ok, err := eng.Can(context.Background(), "u1", "delete", "task", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("role-level deny must override a direct resource grant")
	}
}

func TestResourceGrantLifecycle(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	g, err := eng.GrantResourcePermission(ctx, &GrantResourceRequest{
		UserID: "u1", ResourceType: "task", ResourceID: "t1",
		Actions: []string{"read", "update"}, ActorID: "admin_1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.ID.IsNil() {
		t.Fatal("grant has no ID")
	}

	ok, _ := eng.Can(ctx, "u1", "read", "task", "t1")
	if !ok {
		t.Fatal("expected read allowed on t1")
	}
	ok, _ = eng.Can(ctx, "u1", "read", "task", "t2")
	if ok {
		t.Fatal("grant on t1 must not apply to t2")
	}

	// Partial revoke keeps the remaining actions.
	if err := eng.RevokeResourcePermission(ctx, "u1", "task", "t1", []string{"read"}, "", "admin_1"); err != nil {
		t.Fatal(err)
	}
	ok, _ = eng.Can(ctx, "u1", "read", "task", "t1")
	if ok {
		t.Fatal("expected read revoked")
	}
	ok, _ = eng.Can(ctx, "u1", "update", "task", "t1")
	if !ok {
		t.Fatal("expected update still granted")
	}

	// Revoking the last action removes the row.
	if err := eng.RevokeResourcePermission(ctx, "u1", "task", "t1", []string{"update"}, "", "admin_1"); err != nil {
		t.Fatal(err)
	}
	grants, err := eng.ListUserGrants(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no grant rows left, got %d", len(grants))
	}

	// Revoking an absent grant is an error.
	err = eng.RevokeResourcePermission(ctx, "u1", "task", "t1", []string{"update"}, "", "admin_1")
	if !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("expected ErrGrantNotFound, got %v", err)
	}
}

func TestRepeatedGrantUnionsActions(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.GrantResourcePermission(ctx, &GrantResourceRequest{
		UserID: "u1", ResourceType: "task", ResourceID: "t1", Actions: []string{"read"}, ActorID: "admin_1",
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.GrantResourcePermission(ctx, &GrantResourceRequest{
		UserID: "u1", ResourceType: "task", ResourceID: "t1", Actions: []string{"update"}, ActorID: "admin_1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID.String() != second.ID.String() {
		t.Fatal("repeated grant must reuse the existing row")
	}

	for _, action := range []string{"read", "update"} {
		ok, _ := eng.Can(ctx, "u1", action, "task", "t1")
		if !ok {
			t.Fatalf("expected %s allowed after union", action)
		}
	}
}

func TestExpiredResourceGrantNeverAllows(t *testing.T) {
	// Expiry is judged against the engine clock, not the wall clock.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	eng, _ := newTestEngine(t, WithClock(func() time.Time { return *clock }))
	ctx := context.Background()

	expiry := now.Add(time.Hour)
	if _, err := eng.GrantResourcePermission(ctx, &GrantResourceRequest{
		UserID: "u1", ResourceType: "task", ResourceID: "t1",
		Actions: []string{"read"}, ExpiresAt: &expiry, ActorID: "admin_1",
	}); err != nil {
		t.Fatal(err)
	}

	ok, err := eng.Can(ctx, "u1", "read", "task", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("unexpired grant must allow")
	}

	// Advance past the expiry: the grant goes dark without any purge.
	later := expiry.Add(time.Minute)
	clock = &later
	ok, err = eng.Can(ctx, "u1", "read", "task", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expired grant must not allow")
	}

	grants, err := eng.ListUserGrants(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no visible grants after expiry, got %d", len(grants))
	}
}

func TestGrantRequiresActions(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.GrantResourcePermission(context.Background(), &GrantResourceRequest{
		UserID: "u1", ResourceType: "task", ResourceID: "t1",
	})
	if !errors.Is(err, ErrEmptyActions) {
		t.Fatalf("expected ErrEmptyActions, got %v", err)
	}
}

func TestNoStaleCacheAfterRevoke(t *testing.T) {
	eng, s := newTestEngine(t, WithCache(newMapCache()))
	seedCatalog(t, s, "task.read")
	ctx := context.Background()

	r := createRole(t, eng, "reader", []string{"task.read"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	// Populate the cache.
	mustAllow(t, eng, "u1", "task.read", GlobalScope())

	if err := eng.RevokeRole(ctx, "u1", r.ID, GlobalScope(), "admin_1"); err != nil {
		t.Fatal(err)
	}
	mustDeny(t, eng, "u1", "task.read", GlobalScope())
}

func TestRoleDeleteFlushesCache(t *testing.T) {
	eng, s := newTestEngine(t, WithCache(newMapCache()))
	seedCatalog(t, s, "task.read")
	ctx := context.Background()

	r := createRole(t, eng, "reader", []string{"task.read"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())
	mustAllow(t, eng, "u1", "task.read", GlobalScope())

	if err := eng.DeleteRole(ctx, r.ID, "admin_1"); err != nil {
		t.Fatal(err)
	}
	mustDeny(t, eng, "u1", "task.read", GlobalScope())

	// The assignment was cascaded away with the role.
	views, err := eng.ListUserRoles(ctx, "u1", GlobalScope())
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 0 {
		t.Fatalf("expected no assignments after role delete, got %d", len(views))
	}
}

func TestEveryMutationWritesOneAuditEntry(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.read")
	ctx := context.Background()

	r := createRole(t, eng, "reader", []string{"task.read"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())
	if _, err := eng.GrantResourcePermission(ctx, &GrantResourceRequest{
		UserID: "u1", ResourceType: "task", ResourceID: "t1", Actions: []string{"read"}, ActorID: "admin_1",
	}); err != nil {
		t.Fatal(err)
	}
	if err := eng.RevokeResourcePermission(ctx, "u1", "task", "t1", nil, "", "admin_1"); err != nil {
		t.Fatal(err)
	}
	if err := eng.RevokeRole(ctx, "u1", r.ID, GlobalScope(), "admin_1"); err != nil {
		t.Fatal(err)
	}
	if err := eng.DeleteRole(ctx, r.ID, "admin_1"); err != nil {
		t.Fatal(err)
	}

	actions := []string{
		audit.ActionRoleCreated,
		audit.ActionRoleAssigned,
		audit.ActionResourceGranted,
		audit.ActionResourceRevoked,
		audit.ActionRoleRevoked,
		audit.ActionRoleDeleted,
	}
	for _, action := range actions {
		entries, err := eng.AuditTrail(ctx, &audit.QueryFilter{Action: action})
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected exactly one %q entry, got %d", action, len(entries))
		}
		if entries[0].ActorID != "admin_1" {
			t.Errorf("%q actor = %q, want admin_1", action, entries[0].ActorID)
		}
	}

	byActor, err := eng.AuditTrail(ctx, &audit.QueryFilter{ActorID: "admin_1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byActor) != len(actions) {
		t.Fatalf("expected %d entries for actor, got %d", len(actions), len(byActor))
	}
}

func TestAuditTargetsIdentifyTheMutation(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.read")
	ctx := context.Background()

	r := createRole(t, eng, "reader", []string{"task.read"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	entries, err := eng.AuditTrail(ctx, &audit.QueryFilter{Action: audit.ActionRoleAssigned})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one role_assigned entry, got %d", len(entries))
	}
	e := entries[0]
	if e.TargetType != "user" || e.TargetID != "u1" {
		t.Errorf("target = %s/%s, want user/u1", e.TargetType, e.TargetID)
	}
	if e.Details["role_id"] != r.ID.String() {
		t.Errorf("details role_id = %v, want %s", e.Details["role_id"], r.ID)
	}
}

// failingStore simulates an unavailable backend on the read path.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) ListAssignmentsForUser(context.Context, string, time.Time, assignment.Scope) ([]*assignment.Assignment, error) {
	return nil, errors.New("connection refused")
}

func TestEvaluationFailsClosed(t *testing.T) {
	eng, err := NewEngine(WithStore(&failingStore{Store: memory.New()}))
	if err != nil {
		t.Fatal(err)
	}

	result, err := eng.Check(context.Background(), &CheckRequest{UserID: "u1", Permission: "task.read"})
	if !errors.Is(err, ErrEvaluationUnavailable) {
		t.Fatalf("expected ErrEvaluationUnavailable, got %v", err)
	}
	if result.Allowed {
		t.Fatal("unavailable evaluation must deny")
	}
	if result.Decision != DecisionUnavailable {
		t.Fatalf("expected unavailable decision, got %s", result.Decision)
	}

	ok, err := eng.HasPermission(context.Background(), "u1", "task.read", GlobalScope())
	if err == nil || ok {
		t.Fatal("HasPermission must propagate the failure and deny")
	}
}

func TestCheckRejectsMalformedPermission(t *testing.T) {
	eng, _ := newTestEngine(t)
	for _, name := range []string{"", "task", "task.", ".read", "a.b.c", "*.read"} {
		if _, err := eng.Check(context.Background(), &CheckRequest{UserID: "u1", Permission: name}); !errors.Is(err, ErrInvalidPermissionName) {
			t.Errorf("permission %q: expected ErrInvalidPermissionName, got %v", name, err)
		}
	}
}

func TestCreateRole_DuplicateName(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.read")
	createRole(t, eng, "reader", []string{"task.read"}, nil)

	_, err := eng.CreateRole(context.Background(), &CreateRoleRequest{
		Name: "reader", Level: role.LevelMember,
	})
	if !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
}

func TestCreateRole_SingleDefaultPerWorkspace(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.CreateRole(ctx, &CreateRoleRequest{
		Name: "member", Level: role.LevelMember, IsDefault: true,
	}); err != nil {
		t.Fatal(err)
	}
	_, err := eng.CreateRole(ctx, &CreateRoleRequest{
		Name: "other_default", Level: role.LevelMember, IsDefault: true,
	})
	if !errors.Is(err, ErrDefaultRoleExists) {
		t.Fatalf("expected ErrDefaultRoleExists, got %v", err)
	}

	// A different workspace can still have its own default.
	if _, err := eng.CreateRole(ctx, &CreateRoleRequest{
		WorkspaceID: "ws2", Name: "member", Level: role.LevelMember, IsDefault: true,
	}); err != nil {
		t.Fatalf("default in another workspace: %v", err)
	}
}

func TestCreateRole_UnknownPermissionStrictCatalog(t *testing.T) {
	// Strict catalog is the default: unknown names are rejected.
	eng, _ := newTestEngine(t)
	_, err := eng.CreateRole(context.Background(), &CreateRoleRequest{
		Name: "reader", Level: role.LevelMember, Permissions: []string{"task.read"},
	})
	if !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}

	// Lenient mode skips unknown names instead.
	lenient := false
	eng2, _ := newTestEngine(t, WithConfig(Config{StrictCatalog: &lenient, AuditQueryLimit: 100}))
	r, err := eng2.CreateRole(context.Background(), &CreateRoleRequest{
		Name: "reader", Level: role.LevelMember, Permissions: []string{"task.read"},
	})
	if err != nil {
		t.Fatalf("lenient mode: %v", err)
	}
	grants, err := eng2.Store().ListPermissionGrants(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Fatalf("lenient mode must skip unknown names, got %d grants", len(grants))
	}
}

func TestDeleteRole_SystemRoleImmutable(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	r := &role.Role{
		ID:       id.NewRoleID(),
		Name:     "org_admin",
		Level:    role.LevelOrgAdmin,
		IsSystem: true,
	}
	if err := s.CreateRole(ctx, r, nil, nil); err != nil {
		t.Fatal(err)
	}

	err := eng.DeleteRole(ctx, r.ID, "admin_1")
	if !errors.Is(err, ErrSystemRoleImmutable) {
		t.Fatalf("expected ErrSystemRoleImmutable, got %v", err)
	}
}

func TestAssignRole_DuplicateBinding(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.read")
	r := createRole(t, eng, "reader", []string{"task.read"}, nil)

	assignRole(t, eng, "u1", r.ID, ProjectScope("p1"))
	_, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID: "u1", RoleID: r.ID, Scope: ProjectScope("p1"),
	})
	if !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}

	// Same role in a different scope is a distinct binding.
	if _, err := eng.AssignRole(context.Background(), &AssignRoleRequest{
		UserID: "u1", RoleID: r.ID, Scope: ProjectScope("p2"),
	}); err != nil {
		t.Fatalf("distinct binding: %v", err)
	}
}

func TestRevokeRole_MissingBinding(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.read")
	r := createRole(t, eng, "reader", []string{"task.read"}, nil)

	err := eng.RevokeRole(context.Background(), "u1", r.ID, GlobalScope(), "admin_1")
	if !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestGetUserPermissions(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.*", "project.read")

	r := createRole(t, eng, "worker", []string{"task.*", "project.read"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	set, err := eng.GetUserPermissions(context.Background(), "u1", GlobalScope())
	if err != nil {
		t.Fatal(err)
	}
	if !set.Grants(permission.MustParseName("task.delete")) {
		t.Error("expected set to grant task.delete via wildcard")
	}
	if !set.Grants(permission.MustParseName("project.read")) {
		t.Error("expected set to grant project.read")
	}
	if set.Grants(permission.MustParseName("project.delete")) {
		t.Error("did not expect project.delete")
	}
}

func TestEnforce(t *testing.T) {
	eng, s := newTestEngine(t)
	seedCatalog(t, s, "task.read")
	r := createRole(t, eng, "reader", []string{"task.read"}, nil)
	assignRole(t, eng, "u1", r.ID, GlobalScope())

	if err := eng.Enforce(context.Background(), &CheckRequest{UserID: "u1", Permission: "task.read"}); err != nil {
		t.Fatalf("expected enforce to pass: %v", err)
	}
	err := eng.Enforce(context.Background(), &CheckRequest{UserID: "u2", Permission: "task.read"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

// End to end: a manager with task.* scoped to one project, working alongside
// a direct grant on a single expense.
func TestProjectManagerScenario(t *testing.T) {
	eng, s := newTestEngine(t, WithCache(newMapCache()))
	seedCatalog(t, s, "task.*", "project.read", "expense.approve")
	ctx := context.Background()

	manager := createRole(t, eng, "manager", []string{"task.*", "project.read"}, nil)
	assignRole(t, eng, "alice", manager.ID, ProjectScope("p1"))

	// Task work inside p1.
	mustAllow(t, eng, "alice", "task.create", ProjectScope("p1"))
	mustAllow(t, eng, "alice", "task.delete", ProjectScope("p1"))
	mustAllow(t, eng, "alice", "project.read", ProjectScope("p1"))

	// Nothing outside p1.
	mustDeny(t, eng, "alice", "task.create", ProjectScope("p2"))
	mustDeny(t, eng, "alice", "task.create", GlobalScope())

	// One expense delegated directly, independent of role scope.
	if _, err := eng.GrantResourcePermission(ctx, &GrantResourceRequest{
		UserID: "alice", ResourceType: "expense", ResourceID: "e9",
		Actions: []string{"approve"}, ActorID: "admin_1",
	}); err != nil {
		t.Fatal(err)
	}
	ok, err := eng.Can(ctx, "alice", "approve", "expense", "e9")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected direct grant to allow expense approval")
	}
	ok, _ = eng.Can(ctx, "alice", "approve", "expense", "e10")
	if ok {
		t.Fatal("grant must be limited to the named expense")
	}

	// Revoking the role closes off the project work immediately.
	if err := eng.RevokeRole(ctx, "alice", manager.ID, ProjectScope("p1"), "admin_1"); err != nil {
		t.Fatal(err)
	}
	mustDeny(t, eng, "alice", "task.create", ProjectScope("p1"))

	// The direct grant survives the role revocation.
	ok, _ = eng.Can(ctx, "alice", "approve", "expense", "e9")
	if !ok {
		t.Fatal("direct grant must survive role revocation")
	}
}
