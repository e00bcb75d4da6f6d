package permission

import (
	"errors"
	"testing"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		input    string
		resource string
		action   Action
	}{
		{"task.create", "task", "create"},
		{"task.*", "task", ActionAny},
		{"workspace.manage_billing", "workspace", "manage_billing"},
		{"*", ResourceAny, ActionAny},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			k, err := ParseName(tt.input)
			if err != nil {
				t.Fatalf("ParseName(%q): %v", tt.input, err)
			}
			if k.Resource != tt.resource || k.Action != tt.action {
				t.Errorf("got %s/%s, want %s/%s", k.Resource, k.Action, tt.resource, tt.action)
			}
			if k.Name() != tt.input {
				t.Errorf("Name() = %q, want %q", k.Name(), tt.input)
			}
		})
	}
}

func TestParseNameRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "task", "task.", ".create", "a.b.c", "*.read", "*."} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseName(input)
			if !errors.Is(err, ErrInvalidName) {
				t.Errorf("ParseName(%q) = %v, want ErrInvalidName", input, err)
			}
		})
	}
}

func TestMustParseNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustParseName("not a permission name at all")
}

func TestCovers(t *testing.T) {
	tests := []struct {
		holder   string
		required string
		want     bool
	}{
		{"task.create", "task.create", true},
		{"task.create", "task.delete", false},
		{"task.create", "project.create", false},
		{"task.*", "task.create", true},
		{"task.*", "task.delete", true},
		{"task.*", "project.create", false},
		{"*", "task.create", true},
		{"*", "workspace.manage_billing", true},
		// A concrete key never covers a wildcard requirement.
		{"task.create", "task.*", false},
		{"task.*", "task.*", true},
	}

	for _, tt := range tests {
		t.Run(tt.holder+" vs "+tt.required, func(t *testing.T) {
			holder := MustParseName(tt.holder)
			required := MustParseName(tt.required)
			if got := holder.Covers(required); got != tt.want {
				t.Errorf("Covers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsWildcard(t *testing.T) {
	if MustParseName("task.create").IsWildcard() {
		t.Error("concrete key reported as wildcard")
	}
	if !MustParseName("task.*").IsWildcard() {
		t.Error("resource wildcard not reported")
	}
	if !Universal().IsWildcard() {
		t.Error("universal key not reported")
	}
}
