package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/sentra-auth/sentra/internal/shared"
)

// Service is the access decision engine. Every authorization decision is
// computed from current persisted state: a revoked role takes effect on the
// principal's very next request, at the cost of one extra lookup per call.
type Service struct {
	repo   Repository
	cache  *PermissionCache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. The cache is optional; a nil cache means
// every lookup goes straight to the store.
func NewService(repo Repository, cache *PermissionCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// RequireRole reports whether the principal currently holds at least one of
// the allowed roles. Role state is never cached.
func (s *Service) RequireRole(ctx context.Context, principalID int64, allowed ...string) (bool, error) {
	if len(allowed) == 0 {
		return true, nil
	}
	held, err := s.repo.PrincipalRoleNames(ctx, principalID)
	if err != nil {
		return false, err
	}
	set := make(map[string]struct{}, len(held))
	for _, name := range held {
		set[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range allowed {
		if _, ok := set[strings.ToLower(strings.TrimSpace(name))]; ok {
			return true, nil
		}
	}
	return false, nil
}

// RequirePermission reports whether the union of the principal's role
// permissions contains the named permission.
func (s *Service) RequirePermission(ctx context.Context, principalID int64, permission string) (bool, error) {
	permission = strings.ToLower(strings.TrimSpace(permission))
	if permission == "" {
		return true, nil
	}
	granted, err := s.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	for _, name := range granted {
		if strings.ToLower(name) == permission {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the deduplicated permission names for a
// principal. Concurrent lookups for the same principal are collapsed.
func (s *Service) EffectivePermissions(ctx context.Context, principalID int64) ([]string, error) {
	if s.cache != nil {
		if perms, ok := s.cache.Get(ctx, principalID); ok {
			return perms, nil
		}
	}
	key := fmt.Sprintf("perms:%d", principalID)
	result, err, _ := s.group.Do(key, func() (any, error) {
		perms, err := s.repo.PrincipalPermissionNames(ctx, principalID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, principalID, perms); err != nil {
				s.logger.Warn("cache permissions", slog.Any("error", err))
			}
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsureRole upserts a role by name. Used by bootstrap seeding.
func (s *Service) EnsureRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	return s.repo.EnsureRole(ctx, name, strings.TrimSpace(description))
}

// EnsurePermission upserts a permission by name. Used by bootstrap seeding.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name required", shared.ErrValidation)
	}
	return s.repo.EnsurePermission(ctx, name, strings.TrimSpace(description))
}

// SetRolePermissions replaces the role's permission set and synchronously
// drops every cached permission set, since any principal holding the role
// is affected.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := s.repo.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Flush(ctx); err != nil {
			return fmt.Errorf("rbac: flush permission cache: %w", err)
		}
	}
	return nil
}

// AssignRole adds a role to a principal and invalidates its cached state.
func (s *Service) AssignRole(ctx context.Context, principalID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, principalID, roleID); err != nil {
		return err
	}
	return s.InvalidatePrincipal(ctx, principalID)
}

// InvalidatePrincipal drops the principal's cached permission set. Callers
// that mutate role membership outside this service must invoke it before
// returning to preserve the freshness invariant.
func (s *Service) InvalidatePrincipal(ctx context.Context, principalID int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, principalID); err != nil {
		return fmt.Errorf("rbac: invalidate principal %d: %w", principalID, err)
	}
	return nil
}
