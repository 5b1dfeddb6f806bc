package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/sentra-auth/sentra/internal/rbac"
	"github.com/sentra-auth/sentra/internal/shared"
	"github.com/sentra-auth/sentra/internal/users"
)

// Bootstrap seeds the baseline roles and permissions and, when an admin
// secret is configured, the default administrator principal. Every step is
// find-or-create, so a restart mid-traffic repeats it safely.
func Bootstrap(ctx context.Context, logger *slog.Logger, cfg *Config, rbacService *rbac.Service, store users.Store) error {
	if err := rbacService.Seed(ctx); err != nil {
		return fmt.Errorf("seed rbac: %w", err)
	}

	if cfg.AdminSecret == "" {
		logger.Info("admin secret not configured, skipping admin principal")
		return nil
	}

	admin, err := store.FindByContact(ctx, cfg.AdminContact)
	if errors.Is(err, shared.ErrNotFound) {
		digest, herr := bcrypt.GenerateFromPassword([]byte(cfg.AdminSecret), bcrypt.DefaultCost)
		if herr != nil {
			return fmt.Errorf("hash admin secret: %w", herr)
		}
		admin, err = store.Create(ctx, cfg.AdminName, cfg.AdminContact, string(digest))
		if errors.Is(err, shared.ErrDuplicateContact) {
			// Concurrent boot won the race; re-read the winner.
			admin, err = store.FindByContact(ctx, cfg.AdminContact)
		}
	}
	if err != nil {
		return fmt.Errorf("ensure admin principal: %w", err)
	}

	role, err := rbacService.EnsureRole(ctx, rbac.RoleAdministrator, "")
	if err != nil {
		return fmt.Errorf("resolve administrator role: %w", err)
	}
	if err := rbacService.AssignRole(ctx, admin.ID, role.ID); err != nil {
		return fmt.Errorf("assign administrator role: %w", err)
	}

	logger.Info("bootstrap complete", slog.Int64("admin_id", admin.ID))
	return nil
}
