// Package memory provides an in-memory implementation of the Keeper composite
// store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
	"github.com/crewbase/keeper/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a thread-safe in-memory store for all Keeper entities. Every
// mutation and its audit entry commit under one lock, so readers never see a
// mutation without its record.
type Store struct {
	mu sync.RWMutex

	roles       map[string]*role.Role
	roleGrants  map[string]map[string]role.PermissionGrant // roleID -> permID -> grant
	permissions map[string]*permission.Permission
	assignments map[string]*assignment.Assignment
	grants      map[string]*grant.Grant
	auditLog    map[string]*audit.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		roles:       make(map[string]*role.Role),
		roleGrants:  make(map[string]map[string]role.PermissionGrant),
		permissions: make(map[string]*permission.Permission),
		assignments: make(map[string]*assignment.Assignment),
		grants:      make(map[string]*grant.Grant),
		auditLog:    make(map[string]*audit.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Role Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, r *role.Role, grants []role.PermissionGrant, log *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := r.ID.String()
	s.roles[rk] = copyRole(r)
	gm := make(map[string]role.PermissionGrant, len(grants))
	for _, g := range grants {
		gm[g.PermissionID.String()] = g
	}
	s.roleGrants[rk] = gm
	s.record(log)
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	return copyRole(r), nil
}

func (s *Store) GetRoleByName(_ context.Context, workspaceID, name string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.WorkspaceID == workspaceID && r.Name == name {
			return copyRole(r), nil
		}
	}
	return nil, fmt.Errorf("role %q: %w", name, role.ErrNotFound)
}

func (s *Store) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID.String()]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, role.ErrNotFound)
	}
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID id.RoleID, log *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := roleID.String()
	if _, ok := s.roles[rk]; !ok {
		return fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	delete(s.roles, rk)
	delete(s.roleGrants, rk)
	for k, a := range s.assignments {
		if a.RoleID.String() == rk {
			delete(s.assignments, k)
		}
	}
	s.record(log)
	return nil
}

func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if filter != nil {
			if filter.WorkspaceID != "" && r.WorkspaceID != filter.WorkspaceID {
				if !filter.IncludeGlobal || r.WorkspaceID != "" {
					continue
				}
			}
			if filter.Level != "" && r.Level != filter.Level {
				continue
			}
			if filter.IsSystem != nil && r.IsSystem != *filter.IsSystem {
				continue
			}
			if filter.IsDefault != nil && r.IsDefault != *filter.IsDefault {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyRole(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return applyPagination(result, filterLimits(filter)), nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	list, err := s.ListRoles(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) HasDefaultRole(_ context.Context, workspaceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.WorkspaceID == workspaceID && r.IsDefault {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListPermissionGrants(_ context.Context, roleID id.RoleID) ([]role.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gm, ok := s.roleGrants[roleID.String()]
	if !ok {
		return nil, nil
	}
	result := make([]role.PermissionGrant, 0, len(gm))
	for _, g := range gm {
		result = append(result, g)
	}
	return result, nil
}

func (s *Store) AttachPermission(_ context.Context, g role.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := g.RoleID.String()
	if s.roleGrants[rk] == nil {
		s.roleGrants[rk] = make(map[string]role.PermissionGrant)
	}
	s.roleGrants[rk][g.PermissionID.String()] = g
	return nil
}

func (s *Store) DetachPermission(_ context.Context, roleID id.RoleID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gm, ok := s.roleGrants[roleID.String()]; ok {
		delete(gm, permID.String())
	}
	return nil
}

func (s *Store) SetPermissionGrants(_ context.Context, roleID id.RoleID, grants []role.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gm := make(map[string]role.PermissionGrant, len(grants))
	for _, g := range grants {
		gm[g.PermissionID.String()] = g
	}
	s.roleGrants[roleID.String()] = gm
	return nil
}

// ──────────────────────────────────────────────────
// Permission Store
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

func (s *Store) GetPermission(_ context.Context, permID id.PermissionID) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[permID.String()]
	if !ok {
		return nil, fmt.Errorf("permission %s: %w", permID, permission.ErrNotFound)
	}
	return copyPermission(p), nil
}

func (s *Store) GetPermissionByName(_ context.Context, name string) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.Name() == name {
			return copyPermission(p), nil
		}
	}
	return nil, fmt.Errorf("permission %q: %w", name, permission.ErrNotFound)
}

func (s *Store) DeletePermission(_ context.Context, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := permID.String()
	delete(s.permissions, pk)
	for _, gm := range s.roleGrants {
		delete(gm, pk)
	}
	return nil
}

func (s *Store) ListPermissions(_ context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permission.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if filter != nil {
			if filter.Resource != "" && p.Key.Resource != filter.Resource {
				continue
			}
			if filter.Category != "" && p.Category != filter.Category {
				continue
			}
			if filter.IsSystem != nil && p.IsSystem != *filter.IsSystem {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name()), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyPermission(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	limits := pagOpts{}
	if filter != nil {
		limits = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, limits), nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	list, err := s.ListPermissions(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListPermissionsByRole(_ context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gm, ok := s.roleGrants[roleID.String()]
	if !ok {
		return nil, nil
	}
	var result []*permission.Permission
	for pid := range gm {
		if p, ok := s.permissions[pid]; ok {
			result = append(result, copyPermission(p))
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Assignment Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(_ context.Context, a *assignment.Assignment, log *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID.String()] = copyAssignment(a)
	s.record(log)
	return nil
}

func (s *Store) GetAssignment(_ context.Context, asgnID id.AssignmentID) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[asgnID.String()]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", asgnID, assignment.ErrNotFound)
	}
	return copyAssignment(a), nil
}

func (s *Store) FindAssignment(_ context.Context, userID string, roleID id.RoleID, scope assignment.Scope) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assignments {
		if matchesBinding(a, userID, roleID, scope) {
			return copyAssignment(a), nil
		}
	}
	return nil, fmt.Errorf("assignment for user %s: %w", userID, assignment.ErrNotFound)
}

func (s *Store) DeleteAssignmentByBinding(_ context.Context, userID string, roleID id.RoleID, scope assignment.Scope, log *audit.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, a := range s.assignments {
		if matchesBinding(a, userID, roleID, scope) {
			delete(s.assignments, k)
			count++
		}
	}
	if count > 0 {
		s.record(log)
	}
	return count, nil
}

func (s *Store) ListAssignmentsForUser(_ context.Context, userID string, at time.Time, scope assignment.Scope) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*assignment.Assignment
	for _, a := range s.assignments {
		if a.UserID != userID || !a.ValidAt(at) {
			continue
		}
		if a.ScopeType != assignment.ScopeGlobal && (a.ScopeType != scope.Type || a.ScopeID != scope.ID) {
			continue
		}
		result = append(result, copyAssignment(a))
	}
	return result, nil
}

func (s *Store) ListAssignments(_ context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*assignment.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		if filter != nil {
			if filter.UserID != "" && a.UserID != filter.UserID {
				continue
			}
			if !filter.RoleID.IsNil() && a.RoleID.String() != filter.RoleID.String() {
				continue
			}
			if filter.ScopeType != "" && a.ScopeType != filter.ScopeType {
				continue
			}
			if filter.ScopeID != "" && a.ScopeID != filter.ScopeID {
				continue
			}
		}
		result = append(result, copyAssignment(a))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	limits := pagOpts{}
	if filter != nil {
		limits = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, limits), nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	list, err := s.ListAssignments(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeleteAssignmentsByRole(_ context.Context, roleID id.RoleID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := roleID.String()
	var count int64
	for k, a := range s.assignments {
		if a.RoleID.String() == rk {
			delete(s.assignments, k)
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteExpiredAssignments(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, a := range s.assignments {
		if a.ValidUntil != nil && a.ValidUntil.Before(before) {
			delete(s.assignments, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Resource Grant Store
// ──────────────────────────────────────────────────

func (s *Store) GrantActions(_ context.Context, g *grant.Grant, log *audit.Entry) (id.GrantID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.grants {
		if existing.UserID != g.UserID || existing.ResourceType != g.ResourceType ||
			existing.ResourceID != g.ResourceID || existing.Effect != g.Effect {
			continue
		}
		for _, action := range g.Actions {
			if !existing.HasAction(action) {
				existing.Actions = append(existing.Actions, action)
			}
		}
		existing.ExpiresAt = g.ExpiresAt
		existing.UpdatedAt = g.UpdatedAt
		s.record(log)
		return existing.ID, nil
	}

	s.grants[g.ID.String()] = copyGrant(g)
	s.record(log)
	return g.ID, nil
}

func (s *Store) RevokeActions(_ context.Context, userID, resourceType, resourceID string, actions []string, effect permission.Effect, log *audit.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, g := range s.grants {
		if g.UserID != userID || g.ResourceType != resourceType ||
			g.ResourceID != resourceID || g.Effect != effect {
			continue
		}

		if len(actions) == 0 {
			removed := int64(len(g.Actions))
			delete(s.grants, k)
			s.record(log)
			return removed, nil
		}

		revoke := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			revoke[a] = struct{}{}
		}
		remaining := g.Actions[:0]
		var removed int64
		for _, a := range g.Actions {
			if _, ok := revoke[a]; ok {
				removed++
				continue
			}
			remaining = append(remaining, a)
		}
		if removed == 0 {
			return 0, nil
		}
		if len(remaining) == 0 {
			delete(s.grants, k)
		} else {
			g.Actions = remaining
		}
		s.record(log)
		return removed, nil
	}
	return 0, nil
}

func (s *Store) GetGrant(_ context.Context, grantID id.GrantID) (*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID.String()]
	if !ok {
		return nil, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
	}
	return copyGrant(g), nil
}

func (s *Store) ListGrantsForResource(_ context.Context, userID, resourceType, resourceID string, at time.Time) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*grant.Grant
	for _, g := range s.grants {
		if g.UserID == userID && g.ResourceType == resourceType && g.ResourceID == resourceID && !g.Expired(at) {
			result = append(result, copyGrant(g))
		}
	}
	return result, nil
}

func (s *Store) ListGrantsForUser(_ context.Context, userID string, at time.Time) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*grant.Grant
	for _, g := range s.grants {
		if g.UserID == userID && !g.Expired(at) {
			result = append(result, copyGrant(g))
		}
	}
	return result, nil
}

func (s *Store) DeleteExpiredGrants(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, g := range s.grants {
		if g.ExpiresAt != nil && g.ExpiresAt.Before(before) {
			delete(s.grants, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Audit Store
// ──────────────────────────────────────────────────

func (s *Store) RecordEntry(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(e)
	return nil
}

func (s *Store) GetEntry(_ context.Context, auditID id.AuditID) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.auditLog[auditID.String()]
	if !ok {
		return nil, fmt.Errorf("audit entry %s: %w", auditID, audit.ErrNotFound)
	}
	return copyEntry(e), nil
}

func (s *Store) ListEntries(_ context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*audit.Entry, 0, len(s.auditLog))
	for _, e := range s.auditLog {
		if filter != nil {
			if filter.ActorID != "" && e.ActorID != filter.ActorID {
				continue
			}
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.TargetType != "" && e.TargetType != filter.TargetType {
				continue
			}
			if filter.TargetID != "" && e.TargetID != filter.TargetID {
				continue
			}
			if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
				continue
			}
			if filter.Until != nil && e.CreatedAt.After(*filter.Until) {
				continue
			}
		}
		result = append(result, copyEntry(e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	limits := pagOpts{}
	if filter != nil {
		limits = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, limits), nil
}

func (s *Store) CountEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	list, err := s.ListEntries(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) PurgeEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, e := range s.auditLog {
		if e.CreatedAt.Before(before) {
			delete(s.auditLog, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// record appends an audit entry. Must hold write lock.
func (s *Store) record(e *audit.Entry) {
	if e == nil {
		return
	}
	s.auditLog[e.ID.String()] = copyEntry(e)
}

func matchesBinding(a *assignment.Assignment, userID string, roleID id.RoleID, scope assignment.Scope) bool {
	return a.UserID == userID &&
		a.RoleID.String() == roleID.String() &&
		a.ScopeType == scope.Type &&
		a.ScopeID == scope.ID
}

func copyRole(r *role.Role) *role.Role {
	c := *r
	return &c
}

func copyPermission(p *permission.Permission) *permission.Permission {
	c := *p
	return &c
}

func copyAssignment(a *assignment.Assignment) *assignment.Assignment {
	c := *a
	if a.ValidFrom != nil {
		t := *a.ValidFrom
		c.ValidFrom = &t
	}
	if a.ValidUntil != nil {
		t := *a.ValidUntil
		c.ValidUntil = &t
	}
	return &c
}

func copyGrant(g *grant.Grant) *grant.Grant {
	c := *g
	if g.Actions != nil {
		c.Actions = make([]string, len(g.Actions))
		copy(c.Actions, g.Actions)
	}
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func copyEntry(e *audit.Entry) *audit.Entry {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

type pagOpts struct{ limit, offset int }

func filterLimits(f *role.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset > 0 {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}
