// Package sqlite provides a SQLite implementation of the Keeper composite
// store using grove ORM with Go-based migrations. JSON columns are stored as
// text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

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

// Store is a SQLite implementation of the composite Keeper store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("keeper/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("keeper/sqlite: migration failed: %w", err)
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

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role, grants []role.PermissionGrant, log *audit.Entry) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("keeper: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if _, err := tx.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
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
		if _, err := tx.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("keeper: create role grants: %w", err)
		}
	}
	if log != nil {
		am, err := auditToModel(log)
		if err != nil {
			return fmt.Errorf("keeper: encode audit entry: %w", err)
		}
		if _, err := tx.NewInsert(am).Exec(ctx); err != nil {
			return fmt.Errorf("keeper: record audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("keeper: commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	m := new(roleModel)
	err := s.sdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get role: %w", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) GetRoleByName(ctx context.Context, workspaceID, name string) (*role.Role, error) {
	m := new(roleModel)
	err := s.sdb.NewSelect(m).
		Where("workspace_id = ?", workspaceID).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %q: %w", name, role.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get role by name: %w", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = time.Now().UTC()
	m := roleToModel(r)
	_, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: update role: %w", err)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID, log *audit.Entry) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("keeper: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	_, err = tx.NewDelete((*rolePermissionModel)(nil)).
		Where("role_id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete role grants: %w", err)
	}
	_, err = tx.NewDelete((*assignmentModel)(nil)).
		Where("role_id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete role assignments: %w", err)
	}
	res, err := tx.NewDelete((*roleModel)(nil)).
		Where("id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("keeper: delete role rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	if log != nil {
		am, err := auditToModel(log)
		if err != nil {
			return fmt.Errorf("keeper: encode audit entry: %w", err)
		}
		if _, err := tx.NewInsert(am).Exec(ctx); err != nil {
			return fmt.Errorf("keeper: record audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("keeper: commit tx: %w", err)
	}
	return nil
}

func applyRoleFilter[Q interface {
	Where(string, ...any) Q
}](q Q, filter *role.ListFilter) Q {
	if filter == nil {
		return q
	}
	if filter.WorkspaceID != "" {
		if filter.IncludeGlobal {
			q = q.Where("(workspace_id = ? OR workspace_id = '')", filter.WorkspaceID)
		} else {
			q = q.Where("workspace_id = ?", filter.WorkspaceID)
		}
	}
	if filter.Level != "" {
		q = q.Where("level = ?", string(filter.Level))
	}
	if filter.IsSystem != nil {
		q = q.Where("is_system = ?", *filter.IsSystem)
	}
	if filter.IsDefault != nil {
		q = q.Where("is_default = ?", *filter.IsDefault)
	}
	if filter.Search != "" {
		q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
	}
	return q
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	q = applyRoleFilter(q, filter)
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*roleModel)(nil))
	q = applyRoleFilter(q, filter)
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count roles: %w", err)
	}
	return count, nil
}

func (s *Store) HasDefaultRole(ctx context.Context, workspaceID string) (bool, error) {
	count, err := s.sdb.NewSelect((*roleModel)(nil)).
		Where("workspace_id = ?", workspaceID).
		Where("is_default = ?", true).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("keeper: has default role: %w", err)
	}
	return count > 0, nil
}

func (s *Store) ListPermissionGrants(ctx context.Context, roleID id.RoleID) ([]role.PermissionGrant, error) {
	var models []rolePermissionModel
	err := s.sdb.NewSelect(&models).
		Where("role_id = ?", roleID.String()).
		Scan(ctx)
	if err != nil {
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(role_id, permission_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: attach permission: %w", err)
	}
	return nil
}

func (s *Store) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.sdb.NewDelete((*rolePermissionModel)(nil)).
		Where("role_id = ?", roleID.String()).
		Where("permission_id = ?", permID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: detach permission: %w", err)
	}
	return nil
}

func (s *Store) SetPermissionGrants(ctx context.Context, roleID id.RoleID, grants []role.PermissionGrant) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("keeper: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	_, err = tx.NewDelete((*rolePermissionModel)(nil)).
		Where("role_id = ?", roleID.String()).
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
		if _, err := tx.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("keeper: set permission grants: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("keeper: commit tx: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Permission catalog operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m := permissionToModel(p)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: create permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.sdb.NewSelect(m).Where("id = ?", permID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", permID, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get permission: %w", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) GetPermissionByName(ctx context.Context, name string) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.sdb.NewSelect(m).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %q: %w", name, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get permission by name: %w", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	_, err := s.sdb.NewDelete((*permissionModel)(nil)).
		Where("id = ?", permID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("keeper: delete permission: %w", err)
	}
	return nil
}

func applyPermissionFilter[Q interface {
	Where(string, ...any) Q
}](q Q, filter *permission.ListFilter) Q {
	if filter == nil {
		return q
	}
	if filter.Resource != "" {
		q = q.Where("resource = ?", filter.Resource)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.IsSystem != nil {
		q = q.Where("is_system = ?", *filter.IsSystem)
	}
	if filter.Search != "" {
		q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
	}
	return q
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.sdb.NewSelect(&models).OrderExpr("name ASC")
	q = applyPermissionFilter(q, filter)
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*permissionModel)(nil))
	q = applyPermissionFilter(q, filter)
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count permissions: %w", err)
	}
	return count, nil
}

func (s *Store) ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	var models []permissionModel
	err := s.sdb.NewSelect(&models).
		Join("JOIN", "keeper_role_permissions AS rp", "rp.permission_id = keeper_permissions.id").
		Where("rp.role_id = ?", roleID.String()).
		Scan(ctx)
	if err != nil {
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
	a.CreatedAt = time.Now().UTC()

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("keeper: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if _, err := tx.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
		return fmt.Errorf("keeper: create assignment: %w", err)
	}
	if log != nil {
		am, err := auditToModel(log)
		if err != nil {
			return fmt.Errorf("keeper: encode audit entry: %w", err)
		}
		if _, err := tx.NewInsert(am).Exec(ctx); err != nil {
			return fmt.Errorf("keeper: record audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("keeper: commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, asgnID id.AssignmentID) (*assignment.Assignment, error) {
	m := new(assignmentModel)
	err := s.sdb.NewSelect(m).Where("id = ?", asgnID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assignment %s: %w", asgnID, assignment.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get assignment: %w", err)
	}
	return assignmentFromModel(m), nil
}

func (s *Store) FindAssignment(ctx context.Context, userID string, roleID id.RoleID, scope assignment.Scope) (*assignment.Assignment, error) {
	m := new(assignmentModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID.String()).
		Where("scope_type = ?", string(scope.Type)).
		Where("scope_id = ?", scope.ID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assignment for user %s: %w", userID, assignment.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: find assignment: %w", err)
	}
	return assignmentFromModel(m), nil
}

func (s *Store) DeleteAssignmentByBinding(ctx context.Context, userID string, roleID id.RoleID, scope assignment.Scope, log *audit.Entry) (int64, error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("keeper: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	res, err := tx.NewDelete((*assignmentModel)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID.String()).
		Where("scope_type = ?", string(scope.Type)).
		Where("scope_id = ?", scope.ID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("keeper: delete assignment rows: %w", err)
	}
	if n > 0 && log != nil {
		am, err := auditToModel(log)
		if err != nil {
			return 0, fmt.Errorf("keeper: encode audit entry: %w", err)
		}
		if _, err := tx.NewInsert(am).Exec(ctx); err != nil {
			return 0, fmt.Errorf("keeper: record audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("keeper: commit tx: %w", err)
	}
	return n, nil
}

func (s *Store) ListAssignmentsForUser(ctx context.Context, userID string, at time.Time, scope assignment.Scope) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		Where("(valid_from IS NULL OR valid_from <= ?)", at).
		Where("(valid_until IS NULL OR valid_until > ?)", at)
	if scope.IsGlobal() {
		q = q.Where("scope_type = ''")
	} else {
		q = q.Where("(scope_type = '' OR (scope_type = ? AND scope_id = ?))", string(scope.Type), scope.ID)
	}
	if err := q.OrderExpr("created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list assignments for user: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func applyAssignmentFilter[Q interface {
	Where(string, ...any) Q
}](q Q, filter *assignment.ListFilter) Q {
	if filter == nil {
		return q
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.RoleID.IsNil() {
		q = q.Where("role_id = ?", filter.RoleID.String())
	}
	if filter.ScopeType != "" {
		q = q.Where("scope_type = ?", string(filter.ScopeType))
	}
	if filter.ScopeID != "" {
		q = q.Where("scope_id = ?", filter.ScopeID)
	}
	return q
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	q = applyAssignmentFilter(q, filter)
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*assignmentModel)(nil))
	q = applyAssignmentFilter(q, filter)
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) (int64, error) {
	res, err := s.sdb.NewDelete((*assignmentModel)(nil)).
		Where("role_id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete assignments by role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("keeper: delete assignments by role rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteExpiredAssignments(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*assignmentModel)(nil)).
		Where("valid_until IS NOT NULL").
		Where("valid_until < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete expired assignments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("keeper: delete expired assignments rows: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Resource grant operations
// ──────────────────────────────────────────────────

func (s *Store) GrantActions(ctx context.Context, g *grant.Grant, log *audit.Entry) (id.GrantID, error) {
	now := time.Now().UTC()

	existing := new(grantModel)
	err := s.sdb.NewSelect(existing).
		Where("user_id = ?", g.UserID).
		Where("resource_type = ?", g.ResourceType).
		Where("resource_id = ?", g.ResourceID).
		Where("effect = ?", string(g.Effect)).
		Scan(ctx)
	switch {
	case err == nil:
		prev, perr := grantFromModel(existing)
		if perr != nil {
			return id.GrantID{}, fmt.Errorf("keeper: decode grant: %w", perr)
		}
		g.ID = prev.ID
		g.Actions = unionActions(prev.Actions, g.Actions)
		g.CreatedAt = prev.CreatedAt
	case errors.Is(err, sql.ErrNoRows):
		g.CreatedAt = now
	default:
		return id.GrantID{}, fmt.Errorf("keeper: find grant: %w", err)
	}
	g.UpdatedAt = now

	m, err := grantToModel(g)
	if err != nil {
		return id.GrantID{}, fmt.Errorf("keeper: encode grant: %w", err)
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return id.GrantID{}, fmt.Errorf("keeper: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	// Replace-by-reinsert keeps the whole mutation on the tx query API.
	_, err = tx.NewDelete((*grantModel)(nil)).
		Where("id = ?", g.ID.String()).Exec(ctx)
	if err != nil {
		return id.GrantID{}, fmt.Errorf("keeper: replace grant: %w", err)
	}
	if _, err := tx.NewInsert(m).Exec(ctx); err != nil {
		return id.GrantID{}, fmt.Errorf("keeper: create grant: %w", err)
	}
	if log != nil {
		am, err := auditToModel(log)
		if err != nil {
			return id.GrantID{}, fmt.Errorf("keeper: encode audit entry: %w", err)
		}
		if _, err := tx.NewInsert(am).Exec(ctx); err != nil {
			return id.GrantID{}, fmt.Errorf("keeper: record audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return id.GrantID{}, fmt.Errorf("keeper: commit tx: %w", err)
	}
	return g.ID, nil
}

func (s *Store) RevokeActions(ctx context.Context, userID, resourceType, resourceID string, actions []string, effect permission.Effect, log *audit.Entry) (int64, error) {
	existingModel := new(grantModel)
	err := s.sdb.NewSelect(existingModel).
		Where("user_id = ?", userID).
		Where("resource_type = ?", resourceType).
		Where("resource_id = ?", resourceID).
		Where("effect = ?", string(effect)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("keeper: find grant: %w", err)
	}
	existing, err := grantFromModel(existingModel)
	if err != nil {
		return 0, fmt.Errorf("keeper: decode grant: %w", err)
	}

	remaining, removed := subtractActions(existing.Actions, actions)
	if removed == 0 {
		return 0, nil
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("keeper: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	_, err = tx.NewDelete((*grantModel)(nil)).
		Where("id = ?", existing.ID.String()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: revoke grant: %w", err)
	}
	if len(remaining) > 0 {
		existing.Actions = remaining
		existing.UpdatedAt = time.Now().UTC()
		m, err := grantToModel(existing)
		if err != nil {
			return 0, fmt.Errorf("keeper: encode grant: %w", err)
		}
		if _, err := tx.NewInsert(m).Exec(ctx); err != nil {
			return 0, fmt.Errorf("keeper: shrink grant: %w", err)
		}
	}
	if log != nil {
		am, err := auditToModel(log)
		if err != nil {
			return 0, fmt.Errorf("keeper: encode audit entry: %w", err)
		}
		if _, err := tx.NewInsert(am).Exec(ctx); err != nil {
			return 0, fmt.Errorf("keeper: record audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("keeper: commit tx: %w", err)
	}
	return removed, nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	m := new(grantModel)
	err := s.sdb.NewSelect(m).Where("id = ?", grantID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get grant: %w", err)
	}
	g, err := grantFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("keeper: decode grant: %w", err)
	}
	return g, nil
}

func (s *Store) ListGrantsForResource(ctx context.Context, userID, resourceType, resourceID string, at time.Time) ([]*grant.Grant, error) {
	var models []grantModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		Where("resource_type = ?", resourceType).
		Where("resource_id = ?", resourceID).
		Where("(expires_at IS NULL OR expires_at > ?)", at).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("keeper: list grants for resource: %w", err)
	}
	result := make([]*grant.Grant, 0, len(models))
	for i := range models {
		g, err := grantFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("keeper: decode grant: %w", err)
		}
		result = append(result, g)
	}
	return result, nil
}

func (s *Store) ListGrantsForUser(ctx context.Context, userID string, at time.Time) ([]*grant.Grant, error) {
	var models []grantModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		Where("(expires_at IS NULL OR expires_at > ?)", at).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("keeper: list grants for user: %w", err)
	}
	result := make([]*grant.Grant, 0, len(models))
	for i := range models {
		g, err := grantFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("keeper: decode grant: %w", err)
		}
		result = append(result, g)
	}
	return result, nil
}

func (s *Store) DeleteExpiredGrants(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*grantModel)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: delete expired grants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("keeper: delete expired grants rows: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Audit trail operations
// ──────────────────────────────────────────────────

func (s *Store) RecordEntry(ctx context.Context, e *audit.Entry) error {
	m, err := auditToModel(e)
	if err != nil {
		return fmt.Errorf("keeper: encode audit entry: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("keeper: record audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, auditID id.AuditID) (*audit.Entry, error) {
	m := new(auditModel)
	err := s.sdb.NewSelect(m).Where("id = ?", auditID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit entry %s: %w", auditID, audit.ErrNotFound)
		}
		return nil, fmt.Errorf("keeper: get audit entry: %w", err)
	}
	e, err := auditFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("keeper: decode audit entry: %w", err)
	}
	return e, nil
}

func applyAuditFilter[Q interface {
	Where(string, ...any) Q
}](q Q, filter *audit.QueryFilter) Q {
	if filter == nil {
		return q
	}
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.TargetType != "" {
		q = q.Where("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		q = q.Where("target_id = ?", filter.TargetID)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("created_at <= ?", *filter.Until)
	}
	return q
}

func (s *Store) ListEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC")
	q = applyAuditFilter(q, filter)
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("keeper: list audit entries: %w", err)
	}
	result := make([]*audit.Entry, 0, len(models))
	for i := range models {
		e, err := auditFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("keeper: decode audit entry: %w", err)
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*auditModel)(nil))
	q = applyAuditFilter(q, filter)
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: count audit entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*auditModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("keeper: purge audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("keeper: purge audit entries rows: %w", err)
	}
	return n, nil
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
