// Package mongo provides a MongoDB implementation of the Keeper composite
// store using grove ORM. Mutations and their audit entries are written
// sequentially; MongoDB multi-document transactions require a replica set and
// are not assumed here.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/crewbase/keeper/assignment"
	"github.com/crewbase/keeper/audit"
	"github.com/crewbase/keeper/grant"
	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
	"github.com/crewbase/keeper/store"
)

// Collection name constants.
const (
	colRoles           = "keeper_roles"
	colPermissions     = "keeper_permissions"
	colRolePermissions = "keeper_role_permissions"
	colAssignments     = "keeper_assignments"
	colResourceGrants  = "keeper_resource_grants"
	colAuditLog        = "keeper_audit_log"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Keeper store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all keeper collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("keeper/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// recordAudit appends an audit entry for a mutation that already succeeded.
func (s *Store) recordAudit(ctx context.Context, log *audit.Entry) error {
	if log == nil {
		return nil
	}
	if _, err := s.mdb.NewInsert(auditToModel(log)).Exec(ctx); err != nil {
		return fmt.Errorf("keeper: record audit entry: %w", err)
	}
	return nil
}

// migrationIndexes returns the index definitions for all keeper collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRoles: {
			{
				Keys:    bson.D{{Key: "workspace_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "workspace_id", Value: 1}}},
			{Keys: bson.D{{Key: "workspace_id", Value: 1}, {Key: "is_default", Value: 1}}},
		},
		colPermissions: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "action", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		colRolePermissions: {
			{
				Keys:    bson.D{{Key: "role_id", Value: 1}, {Key: "permission_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		colAssignments: {
			{
				Keys: bson.D{
					{Key: "user_id", Value: 1},
					{Key: "role_id", Value: 1},
					{Key: "scope_type", Value: 1},
					{Key: "scope_id", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "scope_type", Value: 1}, {Key: "scope_id", Value: 1}}},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
			{Keys: bson.D{{Key: "valid_until", Value: 1}}},
		},
		colResourceGrants: {
			{
				Keys: bson.D{
					{Key: "user_id", Value: 1},
					{Key: "resource_type", Value: 1},
					{Key: "resource_id", Value: 1},
					{Key: "effect", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "resource_type", Value: 1}, {Key: "resource_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colAuditLog: {
			{Keys: bson.D{{Key: "actor_id", Value: 1}}},
			{Keys: bson.D{{Key: "target_type", Value: 1}, {Key: "target_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role, grants []role.PermissionGrant, log *audit.Entry) error {
	t := now()
	r.CreatedAt = t
	r.UpdatedAt = t
	if _, err := s.mdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("keeper: create role: %w", err)
	}
	if len(grants) > 0 {
		models := make([]rolePermissionModel, len(grants))
		for i, g := range grants {
			models[i] = rolePermissionModel{
				RoleID:       r.ID.String(),
				PermissionID: g.PermissionID.String(),
				Effect:       string(g.Effect),
			}
		}
		if _, err := s.mdb.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("keeper: create role grants: %w", err)
		}
	}
	return s.recordAudit(ctx, log)
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get role: %w", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) GetRoleByName(ctx context.Context, workspaceID, name string) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"workspace_id": workspaceID, "name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role %q: %w", name, role.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get role by name: %w", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = now()
	m := roleToModel(r)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: update role: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("role %s: %w", r.ID, role.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID, log *audit.Entry) error {
	_, err := s.mdb.NewDelete((*rolePermissionModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete role grants: %w", err)
	}
	_, err = s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete role assignments: %w", err)
	}
	res, err := s.mdb.NewDelete((*roleModel)(nil)).
		Filter(bson.M{"_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete role: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	return s.recordAudit(ctx, log)
}

func roleFilterQuery(filter *role.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.WorkspaceID != "" {
		if filter.IncludeGlobal {
			f["workspace_id"] = bson.M{"$in": []string{filter.WorkspaceID, ""}}
		} else {
			f["workspace_id"] = filter.WorkspaceID
		}
	}
	if filter.Level != "" {
		f["level"] = string(filter.Level)
	}
	if filter.IsSystem != nil {
		f["is_system"] = *filter.IsSystem
	}
	if filter.IsDefault != nil {
		f["is_default"] = *filter.IsDefault
	}
	if filter.Search != "" {
		f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
	}
	return f
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.mdb.NewFind(&models).
		Filter(roleFilterQuery(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*roleModel)(nil)).
		Filter(roleFilterQuery(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count roles: %w", err)
	}
	return count, nil
}

func (s *Store) HasDefaultRole(ctx context.Context, workspaceID string) (bool, error) {
	count, err := s.mdb.NewFind((*roleModel)(nil)).
		Filter(bson.M{"workspace_id": workspaceID, "is_default": true}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("keeper: has default role: %w", err)
	}
	return count > 0, nil
}

func (s *Store) ListPermissionGrants(ctx context.Context, roleID id.RoleID) ([]role.PermissionGrant, error) {
	var models []rolePermissionModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"role_id": roleID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list permission grants: %w", err)
	}
	result := make([]role.PermissionGrant, len(models))
	for i := range models {
		result[i] = permissionGrantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) AttachPermission(ctx context.Context, g role.PermissionGrant) error {
	m := &rolePermissionModel{
		RoleID:       g.RoleID.String(),
		PermissionID: g.PermissionID.String(),
		Effect:       string(g.Effect),
	}
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // already attached
		}
		return fmt.Errorf("keeper: attach permission: %w", err)
	}
	return nil
}

func (s *Store) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.mdb.NewDelete((*rolePermissionModel)(nil)).
		Filter(bson.M{"role_id": roleID.String(), "permission_id": permID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: detach permission: %w", err)
	}
	return nil
}

func (s *Store) SetPermissionGrants(ctx context.Context, roleID id.RoleID, grants []role.PermissionGrant) error {
	_, err := s.mdb.NewDelete((*rolePermissionModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: clear permission grants: %w", err)
	}

	if len(grants) > 0 {
		models := make([]rolePermissionModel, len(grants))
		for i, g := range grants {
			models[i] = rolePermissionModel{
				RoleID:       roleID.String(),
				PermissionID: g.PermissionID.String(),
				Effect:       string(g.Effect),
			}
		}
		if _, err := s.mdb.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("keeper: set permission grants: %w", err)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Permission catalog operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	t := now()
	p.CreatedAt = t
	p.UpdatedAt = t
	if _, err := s.mdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("keeper: create permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": permID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("permission %s: %w", permID, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get permission: %w", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) GetPermissionByName(ctx context.Context, name string) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("permission %q: %w", name, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get permission by name: %w", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	_, err := s.mdb.NewDelete((*permissionModel)(nil)).
		Filter(bson.M{"_id": permID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete permission: %w", err)
	}
	return nil
}

func permissionFilterQuery(filter *permission.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Resource != "" {
		f["resource"] = filter.Resource
	}
	if filter.Category != "" {
		f["category"] = filter.Category
	}
	if filter.IsSystem != nil {
		f["is_system"] = *filter.IsSystem
	}
	if filter.Search != "" {
		f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
	}
	return f
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.mdb.NewFind(&models).
		Filter(permissionFilterQuery(filter)).
		Sort(bson.D{{Key: "name", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list permissions: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*permissionModel)(nil)).
		Filter(permissionFilterQuery(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count permissions: %w", err)
	}
	return count, nil
}

func (s *Store) ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	grants, err := s.ListPermissionGrants(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, nil
	}
	ids := make([]string, len(grants))
	for i, g := range grants {
		ids[i] = g.PermissionID.String()
	}
	var models []permissionModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"_id": bson.M{"$in": ids}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list permissions by role: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment, log *audit.Entry) error {
	a.CreatedAt = now()
	if _, err := s.mdb.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
		return fmt.Errorf("keeper: create assignment: %w", err)
	}
	return s.recordAudit(ctx, log)
}

func (s *Store) GetAssignment(ctx context.Context, asgnID id.AssignmentID) (*assignment.Assignment, error) {
	var m assignmentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": asgnID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("assignment %s: %w", asgnID, assignment.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get assignment: %w", err)
	}
	return assignmentFromModel(&m), nil
}

func bindingFilter(userID string, roleID id.RoleID, scope assignment.Scope) bson.M {
	return bson.M{
		"user_id":    userID,
		"role_id":    roleID.String(),
		"scope_type": string(scope.Type),
		"scope_id":   scope.ID,
	}
}

func (s *Store) FindAssignment(ctx context.Context, userID string, roleID id.RoleID, scope assignment.Scope) (*assignment.Assignment, error) {
	var m assignmentModel
	err := s.mdb.NewFind(&m).
		Filter(bindingFilter(userID, roleID, scope)).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("assignment for user %s: %w", userID, assignment.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: find assignment: %w", err)
	}
	return assignmentFromModel(&m), nil
}

func (s *Store) DeleteAssignmentByBinding(ctx context.Context, userID string, roleID id.RoleID, scope assignment.Scope, log *audit.Entry) (int64, error) {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Filter(bindingFilter(userID, roleID, scope)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete assignment: %w", err)
	}
	n := res.DeletedCount()
	if n > 0 {
		if err := s.recordAudit(ctx, log); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Store) ListAssignmentsForUser(ctx context.Context, userID string, at time.Time, scope assignment.Scope) ([]*assignment.Assignment, error) {
	f := bson.M{
		"user_id": userID,
		"$and": []bson.M{
			{"$or": []bson.M{
				{"valid_from": nil},
				{"valid_from": bson.M{"$lte": at}},
			}},
			{"$or": []bson.M{
				{"valid_until": nil},
				{"valid_until": bson.M{"$gt": at}},
			}},
		},
	}
	if scope.IsGlobal() {
		f["scope_type"] = ""
	} else {
		f["$and"] = append(f["$and"].([]bson.M), bson.M{"$or": []bson.M{
			{"scope_type": ""},
			{"scope_type": string(scope.Type), "scope_id": scope.ID},
		}})
	}
	var models []assignmentModel
	if err := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list assignments for user: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func assignmentFilterQuery(filter *assignment.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if !filter.RoleID.IsNil() {
		f["role_id"] = filter.RoleID.String()
	}
	if filter.ScopeType != "" {
		f["scope_type"] = string(filter.ScopeType)
	}
	if filter.ScopeID != "" {
		f["scope_id"] = filter.ScopeID
	}
	return f
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.mdb.NewFind(&models).
		Filter(assignmentFilterQuery(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list assignments: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*assignmentModel)(nil)).
		Filter(assignmentFilterQuery(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) (int64, error) {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete assignments by role: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) DeleteExpiredAssignments(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{
			"valid_until": bson.M{
				"$ne": nil,
				"$lt": before,
			},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete expired assignments: %w", err)
	}
	return res.DeletedCount(), nil
}

// ──────────────────────────────────────────────────
// Resource grant operations
// ──────────────────────────────────────────────────

func (s *Store) GrantActions(ctx context.Context, g *grant.Grant, log *audit.Entry) (id.GrantID, error) {
	t := now()

	var existing grantModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{
			"user_id":       g.UserID,
			"resource_type": g.ResourceType,
			"resource_id":   g.ResourceID,
			"effect":        string(g.Effect),
		}).
		Scan(ctx)
	switch {
	case err == nil:
		prev := grantFromModel(&existing)
		g.ID = prev.ID
		g.Actions = unionActions(prev.Actions, g.Actions)
		g.CreatedAt = prev.CreatedAt
		g.UpdatedAt = t
		res, uerr := s.mdb.NewUpdate(grantToModel(g)).
			Filter(bson.M{"_id": g.ID.String()}).
			Exec(ctx)
		if uerr != nil {
			return id.GrantID{}, fmt.Errorf("keeper: update grant: %w", uerr)
		}
		if res.MatchedCount() == 0 {
			return id.GrantID{}, fmt.Errorf("grant %s: %w", g.ID, grant.ErrNotFound)
		}
	case isNoDocuments(err):
		g.CreatedAt = t
		g.UpdatedAt = t
		if _, ierr := s.mdb.NewInsert(grantToModel(g)).Exec(ctx); ierr != nil {
			return id.GrantID{}, fmt.Errorf("keeper: create grant: %w", ierr)
		}
	default:
		return id.GrantID{}, fmt.Errorf("keeper: find grant: %w", err)
	}

	if err := s.recordAudit(ctx, log); err != nil {
		return id.GrantID{}, err
	}
	return g.ID, nil
}

func (s *Store) RevokeActions(ctx context.Context, userID, resourceType, resourceID string, actions []string, effect permission.Effect, log *audit.Entry) (int64, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"user_id":       userID,
			"resource_type": resourceType,
			"resource_id":   resourceID,
			"effect":        string(effect),
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("keeper: find grant: %w", err)
	}
	existing := grantFromModel(&m)

	remaining, removed := subtractActions(existing.Actions, actions)
	if removed == 0 {
		return 0, nil
	}

	if len(remaining) == 0 {
		_, err = s.mdb.NewDelete((*grantModel)(nil)).
			Filter(bson.M{"_id": existing.ID.String()}).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("keeper: revoke grant: %w", err)
		}
	} else {
		existing.Actions = remaining
		existing.UpdatedAt = now()
		res, uerr := s.mdb.NewUpdate(grantToModel(existing)).
			Filter(bson.M{"_id": existing.ID.String()}).
			Exec(ctx)
		if uerr != nil {
			return 0, fmt.Errorf("keeper: shrink grant: %w", uerr)
		}
		if res.MatchedCount() == 0 {
			return 0, fmt.Errorf("grant %s: %w", existing.ID, grant.ErrNotFound)
		}
	}

	if err := s.recordAudit(ctx, log); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": grantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get grant: %w", err)
	}
	return grantFromModel(&m), nil
}

func unexpiredFilter(at time.Time) []bson.M {
	return []bson.M{
		{"expires_at": nil},
		{"expires_at": bson.M{"$gt": at}},
	}
}

func (s *Store) ListGrantsForResource(ctx context.Context, userID, resourceType, resourceID string, at time.Time) ([]*grant.Grant, error) {
	var models []grantModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id":       userID,
			"resource_type": resourceType,
			"resource_id":   resourceID,
			"$or":           unexpiredFilter(at),
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("keeper: list grants for resource: %w", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListGrantsForUser(ctx context.Context, userID string, at time.Time) ([]*grant.Grant, error) {
	var models []grantModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"user_id": userID,
			"$or":     unexpiredFilter(at),
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("keeper: list grants for user: %w", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteExpiredGrants(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*grantModel)(nil)).
		Many().
		Filter(bson.M{
			"expires_at": bson.M{
				"$ne": nil,
				"$lt": before,
			},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete expired grants: %w", err)
	}
	return res.DeletedCount(), nil
}

// ──────────────────────────────────────────────────
// Audit trail operations
// ──────────────────────────────────────────────────

func (s *Store) RecordEntry(ctx context.Context, e *audit.Entry) error {
	return s.recordAudit(ctx, e)
}

func (s *Store) GetEntry(ctx context.Context, auditID id.AuditID) (*audit.Entry, error) {
	var m auditModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": auditID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("audit entry %s: %w", auditID, audit.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get audit entry: %w", err)
	}
	return auditFromModel(&m), nil
}

func auditFilterQuery(filter *audit.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.ActorID != "" {
		f["actor_id"] = filter.ActorID
	}
	if filter.Action != "" {
		f["action"] = filter.Action
	}
	if filter.TargetType != "" {
		f["target_type"] = filter.TargetType
	}
	if filter.TargetID != "" {
		f["target_id"] = filter.TargetID
	}
	created := bson.M{}
	if filter.Since != nil {
		created["$gte"] = *filter.Since
	}
	if filter.Until != nil {
		created["$lte"] = *filter.Until
	}
	if len(created) > 0 {
		f["created_at"] = created
	}
	return f
}

func (s *Store) ListEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.mdb.NewFind(&models).
		Filter(auditFilterQuery(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list audit entries: %w", err)
	}
	result := make([]*audit.Entry, len(models))
	for i := range models {
		result[i] = auditFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	count, err := s.mdb.NewFind((*auditModel)(nil)).
		Filter(auditFilterQuery(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count audit entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*auditModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: purge audit entries: %w", err)
	}
	return res.DeletedCount(), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func unionActions(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, a := range base {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	for _, a := range add {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// subtractActions returns base minus remove and the number of actions
// removed. A nil or empty remove list removes everything.
func subtractActions(base, remove []string) ([]string, int64) {
	if len(remove) == 0 {
		return nil, int64(len(base))
	}
	drop := make(map[string]struct{}, len(remove))
	for _, a := range remove {
		drop[a] = struct{}{}
	}
	out := make([]string, 0, len(base))
	var removed int64
	for _, a := range base {
		if _, ok := drop[a]; ok {
			removed++
			continue
		}
		out = append(out, a)
	}
	return out, removed
}
