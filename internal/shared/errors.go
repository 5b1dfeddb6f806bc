package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateContact indicates the contact address is already registered.
	ErrDuplicateContact = errors.New("contact already registered")
	// ErrValidation indicates missing or malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrInactive indicates the principal is deactivated.
	ErrInactive = errors.New("principal inactive")
	// ErrInvalidCredentials indicates login failure. The same error is
	// returned for an unknown secret and a wrong secret so callers cannot
	// enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates a malformed or tampered token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token past its validity window.
	ErrExpiredToken = errors.New("token expired")
	// ErrTokenMissing indicates no token was presented on a protected call.
	ErrTokenMissing = errors.New("token required")
	// ErrForbidden indicates the role or permission check failed.
	ErrForbidden = errors.New("forbidden")
)
