package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sentra-auth/sentra/internal/shared"
	"github.com/sentra-auth/sentra/internal/users"
)

// Service is the identity verifier: it validates submitted credentials
// against stored principals and delegates token minting to the codec.
type Service struct {
	store users.Store
	codec *TokenCodec
}

// NewService constructs a new Service.
func NewService(store users.Store, codec *TokenCodec) *Service {
	return &Service{store: store, codec: codec}
}

// Register validates the fields, hashes the secret and persists the
// principal as active. When initialRole names an existing role it is
// attached; an unknown name is silently skipped.
func (s *Service) Register(ctx context.Context, name, contact, secret, initialRole string) (*users.Principal, error) {
	name = strings.TrimSpace(name)
	contact = strings.TrimSpace(contact)
	if name == "" || contact == "" || secret == "" {
		return nil, fmt.Errorf("%w: name, contact and secret are required", shared.ErrValidation)
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash secret: %w", err)
	}

	principal, err := s.store.Create(ctx, name, contact, string(digest))
	if err != nil {
		return nil, err
	}

	if initialRole != "" {
		if err := s.store.ReplaceRoles(ctx, principal.ID, []string{initialRole}); err != nil {
			return nil, err
		}
	}

	return s.store.FindByID(ctx, principal.ID, false)
}

// Authenticate checks the submitted credentials and mints a session token
// embedding only the principal identifier. A wrong secret and an unknown
// secret produce the same error so the response can stay uniform.
func (s *Service) Authenticate(ctx context.Context, name, contact, secret string) (string, time.Time, error) {
	name = strings.TrimSpace(name)
	contact = strings.TrimSpace(contact)
	if name == "" && contact == "" {
		return "", time.Time{}, fmt.Errorf("%w: name or contact required", shared.ErrValidation)
	}
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("%w: secret required", shared.ErrValidation)
	}

	var principal *users.Principal
	var err error
	if contact != "" {
		principal, err = s.store.FindByContact(ctx, contact)
	} else {
		principal, err = s.store.FindByName(ctx, name)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", time.Time{}, shared.ErrNotFound
		}
		return "", time.Time{}, err
	}

	if !principal.Active {
		return "", time.Time{}, shared.ErrInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(principal.CredentialDigest), []byte(secret)); err != nil {
		return "", time.Time{}, shared.ErrInvalidCredentials
	}

	return s.codec.Issue(principal.ID)
}

// Profile returns the current principal with its roles.
func (s *Service) Profile(ctx context.Context, principalID int64) (*users.Principal, error) {
	return s.store.FindByID(ctx, principalID, false)
}
