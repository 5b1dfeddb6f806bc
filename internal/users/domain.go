package users

import (
	"time"

	"github.com/sentra-auth/sentra/internal/rbac"
)

// Principal represents a user account. CredentialDigest holds the bcrypt
// hash of the secret, never the plaintext.
type Principal struct {
	ID               int64
	Name             string
	Contact          string
	CredentialDigest string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Roles            []rbac.Role
}

// RoleNames returns the names of the roles currently held.
func (p *Principal) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for _, role := range p.Roles {
		names = append(names, role.Name)
	}
	return names
}

// UpdateFields carries a partial principal update. Nil fields are left
// untouched.
type UpdateFields struct {
	Name             *string
	Contact          *string
	CredentialDigest *string
	Active           *bool
}

// Empty reports whether the update carries no field changes.
func (f UpdateFields) Empty() bool {
	return f.Name == nil && f.Contact == nil && f.CredentialDigest == nil && f.Active == nil
}
