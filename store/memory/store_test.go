package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
)

func newAuditEntry(action string) *audit.Entry {
	return &audit.Entry{
		ID:        id.NewAuditID(),
		Action:    action,
		ActorID:   "actor_1",
		CreatedAt: time.Now().UTC(),
	}
}

func newPermission(t *testing.T, s *Store, name string) *permission.Permission {
	t.Helper()
	p := &permission.Permission{
		ID:        id.NewPermissionID(),
		Key:       permission.MustParseName(name),
		Category:  "test",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreatePermission(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRoleCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := newPermission(t, s, "task.create")
	r := &role.Role{
		ID:          id.NewRoleID(),
		WorkspaceID: "ws1",
		Name:        "manager",
		DisplayName: "Manager",
		Level:       role.LevelManager,
	}
	grants := []role.PermissionGrant{{RoleID: r.ID, PermissionID: p.ID, Effect: permission.EffectGrant}}

	// Create stores the role, its grants, and the audit entry atomically.
	if err := s.CreateRole(ctx, r, grants, newAuditEntry(audit.ActionRoleCreated)); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRole(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "manager" {
		t.Fatalf("expected manager, got %s", got.Name)
	}

	got, err = s.GetRoleByName(ctx, "ws1", "manager")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != r.ID {
		t.Fatal("name lookup mismatch")
	}

	gs, err := s.ListPermissionGrants(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(gs) != 1 || gs[0].Effect != permission.EffectGrant {
		t.Fatalf("unexpected grants: %+v", gs)
	}

	perms, err := s.ListPermissionsByRole(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 1 || perms[0].Name() != "task.create" {
		t.Fatalf("unexpected role permissions: %+v", perms)
	}

	entries, err := s.ListEntries(ctx, &audit.QueryFilter{Action: audit.ActionRoleCreated})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}

	count, _ := s.CountRoles(ctx, &role.ListFilter{WorkspaceID: "ws1"})
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	if err := s.DeleteRole(ctx, r.ID, newAuditEntry(audit.ActionRoleDeleted)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRole(ctx, r.ID); !errors.Is(err, role.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteRoleCascadesAssignments(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &role.Role{ID: id.NewRoleID(), Name: "member", Level: role.LevelMember}
	if err := s.CreateRole(ctx, r, nil, nil); err != nil {
		t.Fatal(err)
	}
	a := &assignment.Assignment{
		ID:     id.NewAssignmentID(),
		UserID: "u1",
		RoleID: r.ID,
	}
	if err := s.CreateAssignment(ctx, a, nil); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRole(ctx, r.ID, nil); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListAssignments(ctx, &assignment.ListFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected assignments removed with role, got %d", len(list))
	}
}

func TestListRolesIncludeGlobal(t *testing.T) {
	ctx := context.Background()
	s := New()

	global := &role.Role{ID: id.NewRoleID(), Name: "admin", Level: role.LevelAdmin}
	scoped := &role.Role{ID: id.NewRoleID(), WorkspaceID: "ws1", Name: "manager", Level: role.LevelManager}
	other := &role.Role{ID: id.NewRoleID(), WorkspaceID: "ws2", Name: "guest", Level: role.LevelGuest}
	for _, r := range []*role.Role{global, scoped, other} {
		if err := s.CreateRole(ctx, r, nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListRoles(ctx, &role.ListFilter{WorkspaceID: "ws1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 workspace role, got %d", len(list))
	}

	list, err = s.ListRoles(ctx, &role.ListFilter{WorkspaceID: "ws1", IncludeGlobal: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected workspace + global roles, got %d", len(list))
	}
}

func TestHasDefaultRole(t *testing.T) {
	ctx := context.Background()
	s := New()

	ok, err := s.HasDefaultRole(ctx, "ws1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no default role yet")
	}

	r := &role.Role{ID: id.NewRoleID(), WorkspaceID: "ws1", Name: "member", Level: role.LevelMember, IsDefault: true}
	if err := s.CreateRole(ctx, r, nil, nil); err != nil {
		t.Fatal(err)
	}

	ok, err = s.HasDefaultRole(ctx, "ws1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected default role")
	}
	if ok, _ := s.HasDefaultRole(ctx, "ws2"); ok {
		t.Fatal("default role must be per workspace")
	}
}

func TestAssignmentBindingAndWindow(t *testing.T) {
	ctx := context.Background()
	s := New()

	roleID := id.NewRoleID()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	scope := assignment.Scope{Type: assignment.ScopeProject, ID: "p1"}

	expired := &assignment.Assignment{
		ID:         id.NewAssignmentID(),
		UserID:     "u1",
		RoleID:     roleID,
		ValidUntil: &past,
	}
	scoped := &assignment.Assignment{
		ID:        id.NewAssignmentID(),
		UserID:    "u1",
		RoleID:    roleID,
		ScopeType: scope.Type,
		ScopeID:   scope.ID,
	}
	for _, a := range []*assignment.Assignment{expired, scoped} {
		if err := s.CreateAssignment(ctx, a, nil); err != nil {
			t.Fatal(err)
		}
	}

	// The expired global assignment is invisible at evaluation time.
	list, err := s.ListAssignmentsForUser(ctx, "u1", now, scope)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != scoped.ID {
		t.Fatalf("expected only the scoped assignment, got %d", len(list))
	}

	// The scoped assignment is invisible in a different scope.
	list, _ = s.ListAssignmentsForUser(ctx, "u1", now, assignment.Scope{Type: assignment.ScopeProject, ID: "p2"})
	if len(list) != 0 {
		t.Fatalf("expected no assignments in p2, got %d", len(list))
	}

	// Exact binding lookup matches expired assignments too.
	if _, err := s.FindAssignment(ctx, "u1", roleID, assignment.Scope{}); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteAssignmentByBinding(ctx, "u1", roleID, scope, newAuditEntry(audit.ActionRoleRevoked))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	n, _ = s.DeleteAssignmentByBinding(ctx, "u1", roleID, scope, nil)
	if n != 0 {
		t.Fatalf("expected 0 on repeat delete, got %d", n)
	}
}

func TestDeleteExpiredAssignments(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	for _, until := range []*time.Time{&past, &future, nil} {
		a := &assignment.Assignment{
			ID:         id.NewAssignmentID(),
			UserID:     "u1",
			RoleID:     id.NewRoleID(),
			ValidUntil: until,
		}
		if err := s.CreateAssignment(ctx, a, nil); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteExpiredAssignments(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired assignment deleted, got %d", n)
	}
	count, _ := s.CountAssignments(ctx, &assignment.ListFilter{UserID: "u1"})
	if count != 2 {
		t.Fatalf("expected 2 remaining, got %d", count)
	}
}

func TestGrantActionsUnion(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := &grant.Grant{
		ID:           id.NewGrantID(),
		UserID:       "u1",
		ResourceType: "task",
		ResourceID:   "t1",
		Actions:      []string{"read", "update"},
		Effect:       permission.EffectGrant,
	}
	firstID, err := s.GrantActions(ctx, base, newAuditEntry(audit.ActionResourceGranted))
	if err != nil {
		t.Fatal(err)
	}

	// Granting again unions the action set into the same row.
	again := &grant.Grant{
		ID:           id.NewGrantID(),
		UserID:       "u1",
		ResourceType: "task",
		ResourceID:   "t1",
		Actions:      []string{"update", "delete"},
		Effect:       permission.EffectGrant,
	}
	secondID, err := s.GrantActions(ctx, again, newAuditEntry(audit.ActionResourceGranted))
	if err != nil {
		t.Fatal(err)
	}
	if secondID != firstID {
		t.Fatal("expected union into the existing row")
	}

	g, err := s.GetGrant(ctx, firstID)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Actions) != 3 {
		t.Fatalf("expected 3 actions after union, got %v", g.Actions)
	}
}

func TestRevokeActionsSubtractAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := &grant.Grant{
		ID:           id.NewGrantID(),
		UserID:       "u1",
		ResourceType: "task",
		ResourceID:   "t1",
		Actions:      []string{"read", "update", "delete"},
		Effect:       permission.EffectGrant,
	}
	if _, err := s.GrantActions(ctx, g, nil); err != nil {
		t.Fatal(err)
	}

	n, err := s.RevokeActions(ctx, "u1", "task", "t1", []string{"update"}, permission.EffectGrant, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 action revoked, got %d", n)
	}

	got, _ := s.GetGrant(ctx, g.ID)
	if got.HasAction("update") {
		t.Fatal("update should be revoked")
	}

	// Revoking the rest deletes the row entirely.
	n, err = s.RevokeActions(ctx, "u1", "task", "t1", nil, permission.EffectGrant, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 actions revoked, got %d", n)
	}
	if _, err := s.GetGrant(ctx, g.ID); !errors.Is(err, grant.ErrNotFound) {
		t.Fatalf("expected row deleted, got %v", err)
	}
}

func TestExpiredGrantsInvisible(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	g := &grant.Grant{
		ID:           id.NewGrantID(),
		UserID:       "u1",
		ResourceType: "report",
		ResourceID:   "r1",
		Actions:      []string{"view"},
		Effect:       permission.EffectGrant,
		ExpiresAt:    &past,
	}
	if _, err := s.GrantActions(ctx, g, nil); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListGrantsForResource(ctx, "u1", "report", "r1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatal("expired grant must not be returned")
	}

	// Before its expiry the same grant is visible.
	list, err = s.ListGrantsForResource(ctx, "u1", "report", "r1", past.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 grant before expiry, got %d", len(list))
	}

	n, err := s.DeleteExpiredGrants(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired grant deleted, got %d", n)
	}
}

func TestAuditTrailQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		e := &audit.Entry{
			ID:        id.NewAuditID(),
			Action:    audit.ActionRoleAssigned,
			ActorID:   "actor_1",
			TargetID:  "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	// Newest first.
	entries, err := s.ListEntries(ctx, &audit.QueryFilter{ActorID: "actor_1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].CreatedAt.Before(entries[2].CreatedAt) {
		t.Fatal("entries must be newest first")
	}

	cutoff := base.Add(90 * time.Second)
	n, err := s.PurgeEntries(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}
}
