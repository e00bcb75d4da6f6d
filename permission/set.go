package permission

import "sort"

// Set is a resolved grant/deny permission set for one (user, scope) pair.
// It is what the evaluator computes from role assignments and what the cache
// memoizes. A Set is immutable after resolution; concurrent readers need no
// locking.
type Set struct {
	grants map[Key]struct{}
	denies map[Key]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		grants: make(map[Key]struct{}),
		denies: make(map[Key]struct{}),
	}
}

// Add inserts a key under the given effect.
func (s *Set) Add(k Key, effect Effect) {
	if effect == EffectDeny {
		s.denies[k] = struct{}{}

		return
	}
	s.grants[k] = struct{}{}
}

// Grants reports whether any granted key covers the required key.
func (s *Set) Grants(required Key) bool {
	return covers(s.grants, required)
}

// Denies reports whether any denied key covers the required key.
func (s *Set) Denies(required Key) bool {
	return covers(s.denies, required)
}

// Allows applies deny-overrides precedence: a covering deny defeats every
// grant.
func (s *Set) Allows(required Key) bool {
	return !s.Denies(required) && s.Grants(required)
}

// Len returns the total number of entries (grants plus denies).
func (s *Set) Len() int {
	return len(s.grants) + len(s.denies)
}

// GrantNames returns the sorted dotted names of all granted keys.
func (s *Set) GrantNames() []string {
	return names(s.grants)
}

// DenyNames returns the sorted dotted names of all denied keys.
func (s *Set) DenyNames() []string {
	return names(s.denies)
}

func covers(keys map[Key]struct{}, required Key) bool {
	// Exact match first: the common case for concrete permission rows.
	if _, ok := keys[required]; ok {
		return true
	}
	for k := range keys {
		if k.Covers(required) {
			return true
		}
	}

	return false
}

func names(keys map[Key]struct{}) []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k.Name())
	}
	sort.Strings(out)

	return out
}
