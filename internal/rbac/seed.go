package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sentra-auth/sentra/internal/shared"
)

// Default roles created at bootstrap.
const (
	RoleAdministrator = "Administrator"
	RoleEmployee      = "Employee"
	RoleClient        = "Client"
)

type seedRole struct {
	name        string
	description string
	permissions []string
}

func defaultRoles() []seedRole {
	return []seedRole{
		{RoleAdministrator, "Full administrative access", shared.CoreScopes()},
		{RoleEmployee, "Internal staff", []string{shared.PermUsersList}},
		{RoleClient, "External client", nil},
	}
}

func defaultPermissions() map[string]string {
	return map[string]string{
		shared.PermUsersList:       "List principals",
		shared.PermUsersUpdate:     "Update a principal",
		shared.PermUsersDelete:     "Delete a principal",
		shared.PermRolesView:       "View roles",
		shared.PermPermissionsView: "View permissions",
	}
}

// Seed creates the baseline roles and permissions with find-or-create
// semantics keyed on unique names, so it is idempotent across restarts and
// safe to run concurrently with traffic.
func (s *Service) Seed(ctx context.Context) error {
	permsByName := make(map[string]Permission)
	for name, description := range defaultPermissions() {
		p, err := s.EnsurePermission(ctx, name, description)
		if err != nil {
			return fmt.Errorf("seed permission %q: %w", name, err)
		}
		permsByName[name] = p
	}

	for _, def := range defaultRoles() {
		role, err := s.EnsureRole(ctx, def.name, def.description)
		if err != nil {
			return fmt.Errorf("seed role %q: %w", def.name, err)
		}
		if len(def.permissions) == 0 {
			continue
		}
		ids := make([]int64, 0, len(def.permissions))
		for _, name := range def.permissions {
			ids = append(ids, permsByName[name].ID)
		}
		if err := s.SetRolePermissions(ctx, role.ID, ids); err != nil {
			return fmt.Errorf("seed role %q permissions: %w", def.name, err)
		}
	}

	s.logger.Info("rbac baseline seeded",
		slog.Int("roles", len(defaultRoles())),
		slog.Int("permissions", len(permsByName)))
	return nil
}
