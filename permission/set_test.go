package permission

import (
	"reflect"
	"testing"
)

func TestSetGrantsAndDenies(t *testing.T) {
	s := NewSet()
	s.Add(MustParseName("task.*"), EffectGrant)
	s.Add(MustParseName("task.delete"), EffectDeny)
	s.Add(MustParseName("project.read"), EffectGrant)

	if !s.Grants(MustParseName("task.create")) {
		t.Error("expected wildcard grant to cover task.create")
	}
	if !s.Denies(MustParseName("task.delete")) {
		t.Error("expected explicit deny on task.delete")
	}
	if s.Denies(MustParseName("task.create")) {
		t.Error("deny must not leak to other actions")
	}
	if s.Grants(MustParseName("project.delete")) {
		t.Error("unexpected grant for project.delete")
	}
}

func TestSetAllowsDenyOverrides(t *testing.T) {
	s := NewSet()
	s.Add(MustParseName("task.*"), EffectGrant)
	s.Add(MustParseName("task.delete"), EffectDeny)

	if !s.Allows(MustParseName("task.update")) {
		t.Error("expected task.update allowed")
	}
	if s.Allows(MustParseName("task.delete")) {
		t.Error("deny must defeat the wildcard grant")
	}
}

func TestSetUniversalDeny(t *testing.T) {
	s := NewSet()
	s.Add(MustParseName("task.create"), EffectGrant)
	s.Add(Universal(), EffectDeny)

	if s.Allows(MustParseName("task.create")) {
		t.Error("universal deny must block everything")
	}
}

func TestSetLenAndNames(t *testing.T) {
	s := NewSet()
	if s.Len() != 0 {
		t.Errorf("empty set Len = %d", s.Len())
	}

	s.Add(MustParseName("task.read"), EffectGrant)
	s.Add(MustParseName("project.read"), EffectGrant)
	s.Add(MustParseName("task.delete"), EffectDeny)

	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
	wantGrants := []string{"project.read", "task.read"}
	if got := s.GrantNames(); !reflect.DeepEqual(got, wantGrants) {
		t.Errorf("GrantNames = %v, want %v", got, wantGrants)
	}
	wantDenies := []string{"task.delete"}
	if got := s.DenyNames(); !reflect.DeepEqual(got, wantDenies) {
		t.Errorf("DenyNames = %v, want %v", got, wantDenies)
	}
}
