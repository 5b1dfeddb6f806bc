package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Permissions []Permission
}

// Permission represents an atomic capability, named after the action it
// guards (e.g. "users.list").
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Assignment ties a permission to a role. Pure join record, keyed by the
// pair of foreign identifiers.
type Assignment struct {
	RoleID       int64
	PermissionID int64
}

// PrincipalRole links a principal to a role.
type PrincipalRole struct {
	PrincipalID int64
	RoleID      int64
}
