package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-auth/sentra/internal/platform/db"
	"github.com/sentra-auth/sentra/internal/rbac"
	"github.com/sentra-auth/sentra/internal/shared"
)

const uniqueViolation = "23505"

// Store defines persistence operations for principals. Lookups by name or
// contact return the credential digest for verification; listings never do.
type Store interface {
	FindByName(ctx context.Context, name string) (*Principal, error)
	FindByContact(ctx context.Context, contact string) (*Principal, error)
	FindByID(ctx context.Context, id int64, withPermissions bool) (*Principal, error)
	Create(ctx context.Context, name, contact, credentialDigest string) (*Principal, error)
	List(ctx context.Context) ([]Principal, error)
	Update(ctx context.Context, id int64, fields UpdateFields) (*Principal, error)
	ReplaceRoles(ctx context.Context, id int64, roleNames []string) error
	AddRole(ctx context.Context, principalID, roleID int64) error
	Delete(ctx context.Context, id int64) error
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const principalColumns = `id, name, contact, credential_digest, is_active, created_at, updated_at`

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Name, &p.Contact, &p.CredentialDigest, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindByName fetches a principal by display name.
func (s *PGStore) FindByName(ctx context.Context, name string) (*Principal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE name = $1`, name)
	return scanPrincipal(row)
}

// FindByContact fetches a principal by contact address. Addresses are
// stored lowercased, so the lookup folds case.
func (s *PGStore) FindByContact(ctx context.Context, contact string) (*Principal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE contact = $1`, normalizeContact(contact))
	return scanPrincipal(row)
}

// FindByID fetches a principal with its roles, and optionally each role's
// permissions.
func (s *PGStore) FindByID(ctx context.Context, id int64, withPermissions bool) (*Principal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, err
	}
	roles, err := s.rolesFor(ctx, id, withPermissions)
	if err != nil {
		return nil, err
	}
	p.Roles = roles
	return p, nil
}

// Create persists a new active principal. A contact collision maps to
// shared.ErrDuplicateContact.
func (s *PGStore) Create(ctx context.Context, name, contact, credentialDigest string) (*Principal, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO principals (name, contact, credential_digest, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		RETURNING `+principalColumns,
		name, normalizeContact(contact), credentialDigest)
	p, err := scanPrincipal(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, shared.ErrDuplicateContact
		}
		return nil, fmt.Errorf("users: create principal: %w", err)
	}
	return p, nil
}

// List returns all principals ordered by id, with roles attached.
func (s *PGStore) List(ctx context.Context) ([]Principal, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("users: list principals: %w", err)
	}
	defer rows.Close()
	var principals []Principal
	for rows.Next() {
		var p Principal
		if err := rows.Scan(&p.ID, &p.Name, &p.Contact, &p.CredentialDigest, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachRoles(ctx, principals); err != nil {
		return nil, err
	}
	return principals, nil
}

// Update applies only the supplied fields to the principal record in a
// single statement.
func (s *PGStore) Update(ctx context.Context, id int64, fields UpdateFields) (*Principal, error) {
	if fields.Empty() {
		return s.FindByID(ctx, id, false)
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.Contact != nil {
		add("contact", normalizeContact(*fields.Contact))
	}
	if fields.CredentialDigest != nil {
		add("credential_digest", *fields.CredentialDigest)
	}
	if fields.Active != nil {
		add("is_active", *fields.Active)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE principals SET %s WHERE id = $%d RETURNING `+principalColumns,
		strings.Join(sets, ", "), len(args))
	p, err := scanPrincipal(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, shared.ErrDuplicateContact
		}
		return nil, err
	}
	return p, nil
}

// ReplaceRoles swaps the principal's entire role set for the roles matching
// the given names. Names that resolve to no role are silently ignored; the
// replacement itself is transactional.
func (s *PGStore) ReplaceRoles(ctx context.Context, id int64, roleNames []string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM principals WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("users: check principal: %w", err)
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM principal_roles WHERE principal_id = $1`, id); err != nil {
			return fmt.Errorf("users: clear roles: %w", err)
		}
		if len(roleNames) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO principal_roles (principal_id, role_id)
			SELECT $1, r.id FROM roles r WHERE r.name = ANY($2)
			ON CONFLICT DO NOTHING`, id, roleNames)
		if err != nil {
			return fmt.Errorf("users: attach roles: %w", err)
		}
		return nil
	})
}

// AddRole attaches a single role without removing existing ones.
func (s *PGStore) AddRole(ctx context.Context, principalID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO principal_roles (principal_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, principalID, roleID)
	if err != nil {
		return fmt.Errorf("users: add role: %w", err)
	}
	return nil
}

// Delete removes the principal and cascades removal of its role
// associations.
func (s *PGStore) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM principal_roles WHERE principal_id = $1`, id); err != nil {
			return fmt.Errorf("users: delete role links: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("users: delete principal: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func (s *PGStore) rolesFor(ctx context.Context, principalID int64, withPermissions bool) ([]rbac.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.description
		FROM principal_roles pr
		JOIN roles r ON r.id = pr.role_id
		WHERE pr.principal_id = $1
		ORDER BY r.name`, principalID)
	if err != nil {
		return nil, fmt.Errorf("users: principal roles: %w", err)
	}
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !withPermissions {
		return roles, nil
	}
	for i := range roles {
		perms, err := s.permissionsFor(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s *PGStore) permissionsFor(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("users: role permissions: %w", err)
	}
	defer rows.Close()
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// attachRoles loads role sets for a listing in one query.
func (s *PGStore) attachRoles(ctx context.Context, principals []Principal) error {
	if len(principals) == 0 {
		return nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT pr.principal_id, r.id, r.name, r.description
		FROM principal_roles pr
		JOIN roles r ON r.id = pr.role_id
		ORDER BY r.name`)
	if err != nil {
		return fmt.Errorf("users: attach roles: %w", err)
	}
	defer rows.Close()
	byPrincipal := make(map[int64][]rbac.Role)
	for rows.Next() {
		var principalID int64
		var role rbac.Role
		if err := rows.Scan(&principalID, &role.ID, &role.Name, &role.Description); err != nil {
			return err
		}
		byPrincipal[principalID] = append(byPrincipal[principalID], role)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range principals {
		principals[i].Roles = byPrincipal[principals[i].ID]
	}
	return nil
}

func normalizeContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Store = (*PGStore)(nil)
