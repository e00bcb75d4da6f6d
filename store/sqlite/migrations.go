package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Keeper store (SQLite).
var Migrations = migrate.NewGroup("keeper")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_roles",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS keeper_roles (
    id              TEXT PRIMARY KEY,
    workspace_id    TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL,
    display_name    TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    level           TEXT NOT NULL,
    is_system       INTEGER NOT NULL DEFAULT 0,
    is_default      INTEGER NOT NULL DEFAULT 0,
    created_by      TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(workspace_id, name)
);

CREATE INDEX IF NOT EXISTS idx_keeper_roles_workspace ON keeper_roles (workspace_id);
CREATE INDEX IF NOT EXISTS idx_keeper_roles_default ON keeper_roles (workspace_id, is_default);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS keeper_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_permissions",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS keeper_permissions (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    resource        TEXT NOT NULL,
    action          TEXT NOT NULL,
    category        TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    is_system       INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(name)
);

CREATE INDEX IF NOT EXISTS idx_keeper_permissions_resource ON keeper_permissions (resource, action);
CREATE INDEX IF NOT EXISTS idx_keeper_permissions_category ON keeper_permissions (category);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS keeper_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_role_permissions",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS keeper_role_permissions (
    role_id         TEXT NOT NULL REFERENCES keeper_roles(id) ON DELETE CASCADE,
    permission_id   TEXT NOT NULL REFERENCES keeper_permissions(id) ON DELETE CASCADE,
    effect          TEXT NOT NULL DEFAULT 'grant',

    PRIMARY KEY (role_id, permission_id)
);

CREATE INDEX IF NOT EXISTS idx_keeper_role_perms_role ON keeper_role_permissions (role_id);
CREATE INDEX IF NOT EXISTS idx_keeper_role_perms_perm ON keeper_role_permissions (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS keeper_role_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_assignments",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS keeper_assignments (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    role_id         TEXT NOT NULL REFERENCES keeper_roles(id) ON DELETE CASCADE,
    scope_type      TEXT NOT NULL DEFAULT '',
    scope_id        TEXT NOT NULL DEFAULT '',
    valid_from      TEXT,
    valid_until     TEXT,
    assigned_by     TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(user_id, role_id, scope_type, scope_id)
);

CREATE INDEX IF NOT EXISTS idx_keeper_assign_user ON keeper_assignments (user_id, scope_type, scope_id);
CREATE INDEX IF NOT EXISTS idx_keeper_assign_role ON keeper_assignments (role_id);
CREATE INDEX IF NOT EXISTS idx_keeper_assign_until ON keeper_assignments (valid_until);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS keeper_assignments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_resource_grants",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS keeper_resource_grants (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    resource_type   TEXT NOT NULL,
    resource_id     TEXT NOT NULL,
    actions         TEXT NOT NULL DEFAULT '[]',
    effect          TEXT NOT NULL DEFAULT 'grant',
    expires_at      TEXT,
    granted_by      TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(user_id, resource_type, resource_id, effect)
);

CREATE INDEX IF NOT EXISTS idx_keeper_grants_resource ON keeper_resource_grants (user_id, resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_keeper_grants_expires ON keeper_resource_grants (expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS keeper_resource_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_log",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS keeper_audit_log (
    id              TEXT PRIMARY KEY,
    action          TEXT NOT NULL,
    actor_id        TEXT NOT NULL DEFAULT '',
    actor_ip        TEXT NOT NULL DEFAULT '',
    target_type     TEXT NOT NULL DEFAULT '',
    target_id       TEXT NOT NULL DEFAULT '',
    details         TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_keeper_audit_actor ON keeper_audit_log (actor_id);
CREATE INDEX IF NOT EXISTS idx_keeper_audit_target ON keeper_audit_log (target_type, target_id);
CREATE INDEX IF NOT EXISTS idx_keeper_audit_created ON keeper_audit_log (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS keeper_audit_log`)
				return err
			},
		},
	)
}
