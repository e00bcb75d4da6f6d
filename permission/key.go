package permission

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned when a permission name cannot be parsed.
var ErrInvalidName = errors.New("invalid permission name")

// ResourceAny is the resource component of the universal permission "*".
const ResourceAny = "*"

// Action identifies what a permission allows on its resource type.
type Action string

// ActionAny is the wildcard action sentinel: a key holding it covers every
// action on its resource type.
const ActionAny Action = "*"

// Key is the structured identity of a permission: a resource type plus an
// action. Wildcards are modeled as sentinels rather than parsed from dotted
// strings at evaluation time, which makes coverage a total function.
type Key struct {
	Resource string `json:"resource"`
	Action   Action `json:"action"`
}

// NewKey builds a concrete key.
func NewKey(resource string, action Action) Key {
	return Key{Resource: resource, Action: action}
}

// Universal is the key of the catalog-wide wildcard permission "*".
func Universal() Key {
	return Key{Resource: ResourceAny, Action: ActionAny}
}

// ParseName parses a dotted permission name ("task.create", "task.*", "*")
// into a Key. The name must be a bare "*" or exactly two non-empty dot
// separated components.
func ParseName(name string) (Key, error) {
	if name == "*" {
		return Universal(), nil
	}

	resource, action, ok := strings.Cut(name, ".")
	if !ok || resource == "" || action == "" || strings.Contains(action, ".") {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if resource == ResourceAny {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return Key{Resource: resource, Action: Action(action)}, nil
}

// MustParseName is like ParseName but panics on error. Use for seed data.
func MustParseName(name string) Key {
	k, err := ParseName(name)
	if err != nil {
		panic(err)
	}

	return k
}

// Name returns the dotted string form of the key.
func (k Key) Name() string {
	if k.Resource == ResourceAny {
		return "*"
	}

	return k.Resource + "." + string(k.Action)
}

// IsWildcard reports whether the key covers more than one concrete
// permission.
func (k Key) IsWildcard() bool {
	return k.Resource == ResourceAny || k.Action == ActionAny
}

// Covers reports whether this key matches the required key. The universal
// key covers everything; a resource wildcard covers every action on the same
// resource type; otherwise the keys must match exactly.
func (k Key) Covers(required Key) bool {
	if k.Resource == ResourceAny {
		return true
	}
	if k.Resource != required.Resource {
		return false
	}

	return k.Action == ActionAny || k.Action == required.Action
}
