package seed

import (
	"context"
	"testing"
	"time"

	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/store/memory"
)

func TestApply(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := Apply(ctx, s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	n, err := s.CountPermissions(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(catalog)) {
		t.Errorf("permission count = %d, want %d", n, len(catalog))
	}

	for _, name := range []string{"task.create", "task.*", "timesheet.approve", "*"} {
		p, err := s.GetPermissionByName(ctx, name)
		if err != nil {
			t.Fatalf("GetPermissionByName(%q): %v", name, err)
		}
		if !p.IsSystem {
			t.Errorf("permission %q is not marked system", name)
		}
	}

	for _, spec := range systemRoles {
		r, err := s.GetRoleByName(ctx, "", spec.name)
		if err != nil {
			t.Fatalf("GetRoleByName(%q): %v", spec.name, err)
		}
		if !r.IsSystem {
			t.Errorf("role %q is not marked system", spec.name)
		}
		if r.Level != spec.level {
			t.Errorf("role %q level = %q, want %q", spec.name, r.Level, spec.level)
		}
		grants, err := s.ListPermissionGrants(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(grants) != len(spec.permissions) {
			t.Errorf("role %q has %d grants, want %d", spec.name, len(grants), len(spec.permissions))
		}
	}
}

func TestApplyMemberIsDefault(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := Apply(ctx, s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for _, spec := range systemRoles {
		r, err := s.GetRoleByName(ctx, "", spec.name)
		if err != nil {
			t.Fatal(err)
		}
		if r.IsDefault != (spec.name == "member") {
			t.Errorf("role %q IsDefault = %v", spec.name, r.IsDefault)
		}
	}
}

func TestApplyIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := Apply(ctx, s); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	admin, err := s.GetRoleByName(ctx, "", "org_admin")
	if err != nil {
		t.Fatal(err)
	}

	if err := Apply(ctx, s); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	n, err := s.CountPermissions(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(catalog)) {
		t.Errorf("permission count after second Apply = %d, want %d", n, len(catalog))
	}

	again, err := s.GetRoleByName(ctx, "", "org_admin")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID.String() != admin.ID.String() {
		t.Error("second Apply replaced the org_admin role")
	}
}

func TestApplyKeepsExistingPermissions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	now := time.Now().UTC()
	custom := &permission.Permission{
		ID:          id.NewPermissionID(),
		Key:         permission.MustParseName("task.create"),
		Category:    "custom",
		Description: "operator-tuned entry",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreatePermission(ctx, custom); err != nil {
		t.Fatal(err)
	}

	if err := Apply(ctx, s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	p, err := s.GetPermissionByName(ctx, "task.create")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID.String() != custom.ID.String() {
		t.Error("Apply replaced the pre-existing permission")
	}
	if p.Description != "operator-tuned entry" {
		t.Errorf("Apply rewrote the description: %q", p.Description)
	}
}

func TestCatalogNamesParse(t *testing.T) {
	for _, spec := range catalog {
		if _, err := permission.ParseName(spec.name); err != nil {
			t.Errorf("catalog entry %q does not parse: %v", spec.name, err)
		}
	}
	for _, rs := range systemRoles {
		for _, name := range rs.permissions {
			if _, err := permission.ParseName(name); err != nil {
				t.Errorf("role %q references unparsable name %q: %v", rs.name, name, err)
			}
		}
	}
}
