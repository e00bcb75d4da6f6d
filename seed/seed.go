// Package seed bootstraps the built-in permission catalog and the system
// roles. Apply is idempotent: rows that already exist are left untouched, so
// it can run on every startup.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewbase/keeper/id"
	"github.com/crewbase/keeper/permission"
	"github.com/crewbase/keeper/role"
	"github.com/crewbase/keeper/store"
)

// Catalog categories.
const (
	CategoryProjects     = "projects"
	CategoryTasks        = "tasks"
	CategoryTeams        = "teams"
	CategoryUsers        = "users"
	CategoryReports      = "reports"
	CategoryTimesheets   = "timesheets"
	CategoryWorkspace    = "workspace"
	CategoryAutomations  = "automations"
	CategoryIntegrations = "integrations"
)

type permissionSpec struct {
	name        string
	category    string
	description string
}

// catalog is the built-in permission set. Wildcard rows are first-class
// entries so roles can reference them by name.
var catalog = []permissionSpec{
	// Projects
	{"project.create", CategoryProjects, "Create projects"},
	{"project.read", CategoryProjects, "View projects"},
	{"project.update", CategoryProjects, "Edit project settings"},
	{"project.delete", CategoryProjects, "Delete projects"},
	{"project.archive", CategoryProjects, "Archive projects"},
	{"project.*", CategoryProjects, "All project actions"},

	// Tasks
	{"task.create", CategoryTasks, "Create tasks"},
	{"task.read", CategoryTasks, "View tasks"},
	{"task.update", CategoryTasks, "Edit tasks"},
	{"task.delete", CategoryTasks, "Delete tasks"},
	{"task.assign", CategoryTasks, "Assign tasks to users"},
	{"task.comment", CategoryTasks, "Comment on tasks"},
	{"task.*", CategoryTasks, "All task actions"},

	// Teams
	{"team.create", CategoryTeams, "Create teams"},
	{"team.read", CategoryTeams, "View teams"},
	{"team.update", CategoryTeams, "Edit teams"},
	{"team.manage_members", CategoryTeams, "Add and remove team members"},
	{"team.*", CategoryTeams, "All team actions"},

	// Users
	{"user.invite", CategoryUsers, "Invite users to the workspace"},
	{"user.read", CategoryUsers, "View user profiles"},
	{"user.update", CategoryUsers, "Edit user profiles"},
	{"user.deactivate", CategoryUsers, "Deactivate user accounts"},
	{"user.*", CategoryUsers, "All user actions"},

	// Reports
	{"report.read", CategoryReports, "View reports"},
	{"report.export", CategoryReports, "Export report data"},
	{"report.*", CategoryReports, "All report actions"},

	// Timesheets
	{"timesheet.create", CategoryTimesheets, "Create timesheet entries"},
	{"timesheet.read", CategoryTimesheets, "View timesheets"},
	{"timesheet.submit", CategoryTimesheets, "Submit timesheets for approval"},
	{"timesheet.approve", CategoryTimesheets, "Approve submitted timesheets"},
	{"timesheet.*", CategoryTimesheets, "All timesheet actions"},

	// Workspace
	{"workspace.update", CategoryWorkspace, "Edit workspace settings"},
	{"workspace.manage_settings", CategoryWorkspace, "Manage workspace configuration"},
	{"workspace.manage_billing", CategoryWorkspace, "Manage billing and plans"},
	{"workspace.*", CategoryWorkspace, "All workspace actions"},

	// Automations
	{"automation.create", CategoryAutomations, "Create automation rules"},
	{"automation.read", CategoryAutomations, "View automation rules"},
	{"automation.update", CategoryAutomations, "Edit automation rules"},
	{"automation.delete", CategoryAutomations, "Delete automation rules"},
	{"automation.*", CategoryAutomations, "All automation actions"},

	// Integrations
	{"integration.install", CategoryIntegrations, "Install integrations"},
	{"integration.configure", CategoryIntegrations, "Configure integrations"},
	{"integration.remove", CategoryIntegrations, "Remove integrations"},
	{"integration.*", CategoryIntegrations, "All integration actions"},

	// Universal
	{"*", CategoryWorkspace, "Every permission"},
}

type roleSpec struct {
	name        string
	displayName string
	description string
	level       role.Level
	isDefault   bool
	permissions []string
}

// systemRoles are the five built-in global roles. Permission lists mix
// concrete names and wildcard rows from the catalog.
var systemRoles = []roleSpec{
	{
		name:        "org_admin",
		displayName: "Organization Admin",
		description: "Full access to everything in the organization",
		level:       role.LevelOrgAdmin,
		permissions: []string{"*"},
	},
	{
		name:        "admin",
		displayName: "Administrator",
		description: "Manages projects, people and workspace configuration",
		level:       role.LevelAdmin,
		permissions: []string{
			"project.*", "task.*", "team.*", "user.*",
			"report.*", "timesheet.*", "automation.*", "integration.*",
			"workspace.update", "workspace.manage_settings",
		},
	},
	{
		name:        "manager",
		displayName: "Manager",
		description: "Runs projects and approves team output",
		level:       role.LevelManager,
		permissions: []string{
			"project.*", "task.*", "report.*",
			"team.read", "team.manage_members",
			"user.read",
			"timesheet.read", "timesheet.approve",
		},
	},
	{
		name:        "member",
		displayName: "Member",
		description: "Works on tasks and tracks time",
		level:       role.LevelMember,
		isDefault:   true,
		permissions: []string{
			"project.read",
			"task.create", "task.read", "task.update", "task.comment",
			"team.read", "user.read", "report.read",
			"timesheet.create", "timesheet.read", "timesheet.submit",
		},
	},
	{
		name:        "guest",
		displayName: "Guest",
		description: "Read-only visitor",
		level:       role.LevelGuest,
		permissions: []string{"project.read", "task.read", "team.read", "report.read"},
	},
}

// Apply inserts the missing parts of the built-in catalog and system roles.
// Permissions are created before roles so role grants always resolve. No
// audit entries are recorded; seeding is a bootstrap step, not an actor
// mutation.
func Apply(ctx context.Context, s store.Store) error {
	byName, err := applyPermissions(ctx, s)
	if err != nil {
		return err
	}
	return applyRoles(ctx, s, byName)
}

func applyPermissions(ctx context.Context, s store.Store) (map[string]id.PermissionID, error) {
	now := time.Now().UTC()
	byName := make(map[string]id.PermissionID, len(catalog))
	for _, spec := range catalog {
		existing, err := s.GetPermissionByName(ctx, spec.name)
		if err == nil {
			byName[spec.name] = existing.ID
			continue
		}
		if !errors.Is(err, permission.ErrNotFound) {
			return nil, fmt.Errorf("seed permission %q: %w", spec.name, err)
		}

		p := &permission.Permission{
			ID:          id.NewPermissionID(),
			Key:         permission.MustParseName(spec.name),
			Category:    spec.category,
			Description: spec.description,
			IsSystem:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.CreatePermission(ctx, p); err != nil {
			return nil, fmt.Errorf("seed permission %q: %w", spec.name, err)
		}
		byName[spec.name] = p.ID
	}
	return byName, nil
}

func applyRoles(ctx context.Context, s store.Store, byName map[string]id.PermissionID) error {
	now := time.Now().UTC()
	for _, spec := range systemRoles {
		if _, err := s.GetRoleByName(ctx, "", spec.name); err == nil {
			continue
		} else if !errors.Is(err, role.ErrNotFound) {
			return fmt.Errorf("seed role %q: %w", spec.name, err)
		}

		r := &role.Role{
			ID:          id.NewRoleID(),
			Name:        spec.name,
			DisplayName: spec.displayName,
			Description: spec.description,
			Level:       spec.level,
			IsSystem:    true,
			IsDefault:   spec.isDefault,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		grants := make([]role.PermissionGrant, 0, len(spec.permissions))
		for _, name := range spec.permissions {
			pid, ok := byName[name]
			if !ok {
				return fmt.Errorf("seed role %q: permission %q not in catalog", spec.name, name)
			}
			grants = append(grants, role.PermissionGrant{
				RoleID:       r.ID,
				PermissionID: pid,
				Effect:       permission.EffectGrant,
			})
		}
		if err := s.CreateRole(ctx, r, grants, nil); err != nil {
			return fmt.Errorf("seed role %q: %w", spec.name, err)
		}
	}
	return nil
}
