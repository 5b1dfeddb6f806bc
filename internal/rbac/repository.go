package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-auth/sentra/internal/platform/db"
	"github.com/sentra-auth/sentra/internal/shared"
)

// Repository defines persistence operations for roles, permissions and
// their associations.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsureRole(ctx context.Context, name, description string) (Role, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AssignRole(ctx context.Context, principalID, roleID int64) error
	PrincipalRoleNames(ctx context.Context, principalID int64) ([]string, error)
	PrincipalPermissionNames(ctx context.Context, principalID int64) ([]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsureRole upserts a role by its unique name. Safe to run concurrently
// and on every boot.
func (r *PGRepository) EnsureRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE
		SET description = CASE WHEN EXCLUDED.description = '' THEN roles.description ELSE EXCLUDED.description END,
		    updated_at = NOW()
		RETURNING id, name, description, created_at, updated_at`,
		name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: ensure role %q: %w", name, err)
	}
	return role, nil
}

// EnsurePermission upserts a permission by its unique name.
func (r *PGRepository) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE
		SET description = CASE WHEN EXCLUDED.description = '' THEN permissions.description ELSE EXCLUDED.description END,
		    updated_at = NOW()
		RETURNING id, name, description`,
		name, description,
	).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: ensure permission %q: %w", name, err)
	}
	return p, nil
}

// SetRolePermissions replaces the role's permission set in one transaction.
func (r *PGRepository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return fmt.Errorf("rbac: check role: %w", err)
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: clear role permissions: %w", err)
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
				return fmt.Errorf("rbac: attach permission %d: %w", permID, err)
			}
		}
		return nil
	})
}

// AssignRole adds a role to a principal without touching existing roles.
func (r *PGRepository) AssignRole(ctx context.Context, principalID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principal_roles (principal_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, principalID, roleID)
	if err != nil {
		return fmt.Errorf("rbac: assign role: %w", err)
	}
	return nil
}

// PrincipalRoleNames returns the current role names held by the principal.
// Returns shared.ErrNotFound when the principal record no longer exists, so
// a token minted before deletion denies instead of authorizing.
func (r *PGRepository) PrincipalRoleNames(ctx context.Context, principalID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.name
		FROM principals p
		LEFT JOIN principal_roles pr ON pr.principal_id = p.id
		LEFT JOIN roles r ON r.id = pr.role_id
		WHERE p.id = $1`, principalID)
	if err != nil {
		return nil, fmt.Errorf("rbac: principal roles: %w", err)
	}
	defer rows.Close()
	return scanNameRows(rows)
}

// PrincipalPermissionNames resolves the union of permission names across all
// roles currently held by the principal. Always a live two-hop join; the
// token never carries this state.
func (r *PGRepository) PrincipalPermissionNames(ctx context.Context, principalID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT perm.name
		FROM principals p
		LEFT JOIN principal_roles pr ON pr.principal_id = p.id
		LEFT JOIN role_permissions rp ON rp.role_id = pr.role_id
		LEFT JOIN permissions perm ON perm.id = rp.permission_id
		WHERE p.id = $1`, principalID)
	if err != nil {
		return nil, fmt.Errorf("rbac: principal permissions: %w", err)
	}
	defer rows.Close()
	return scanNameRows(rows)
}

// scanNameRows collapses a LEFT JOIN result: zero rows means the principal
// is gone, NULL names mean it exists with nothing attached.
func scanNameRows(rows pgx.Rows) ([]string, error) {
	found := false
	var names []string
	for rows.Next() {
		var name pgtype.Text
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found = true
		if name.Valid && name.String != "" {
			names = append(names, name.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, shared.ErrNotFound
	}
	return names, nil
}

var _ Repository = (*PGRepository)(nil)
