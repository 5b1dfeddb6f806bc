package users

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Invalidator drops cached authorization state for a principal. Satisfied
// by the rbac service; a nil invalidator is a no-op.
type Invalidator interface {
	InvalidatePrincipal(ctx context.Context, principalID int64) error
}

// Service is the principal lifecycle manager: administrative create,
// update (with credential rotation and role replacement), deactivation and
// deletion.
type Service struct {
	store Store
	authz Invalidator
}

// NewService builds Service instance.
func NewService(store Store, authz Invalidator) *Service {
	return &Service{store: store, authz: authz}
}

// List returns all principals with their roles, digests excluded.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	principals, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	summaries := make([]Summary, 0, len(principals))
	for i := range principals {
		summaries = append(summaries, NewSummary(&principals[i]))
	}
	return summaries, nil
}

// Get fetches a single principal with roles.
func (s *Service) Get(ctx context.Context, id int64) (*Principal, error) {
	return s.store.FindByID(ctx, id, false)
}

// Update applies a partial administrative update. The record fields are one
// transaction boundary; role replacement is its own, applied after the
// field update succeeds. A supplied secret is re-hashed, never stored raw.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Principal, error) {
	fields := UpdateFields{
		Name:    req.Name,
		Contact: req.Contact,
		Active:  req.Active,
	}
	if req.Secret != nil {
		digest, err := bcrypt.GenerateFromPassword([]byte(*req.Secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash secret: %w", err)
		}
		hashed := string(digest)
		fields.CredentialDigest = &hashed
	}

	if _, err := s.store.Update(ctx, id, fields); err != nil {
		return nil, err
	}

	if req.Roles != nil {
		if err := s.store.ReplaceRoles(ctx, id, *req.Roles); err != nil {
			return nil, err
		}
		if err := s.invalidate(ctx, id); err != nil {
			return nil, err
		}
	}

	return s.store.FindByID(ctx, id, false)
}

// Deactivate blocks authentication while preserving the record.
func (s *Service) Deactivate(ctx context.Context, id int64) (*Principal, error) {
	inactive := false
	return s.store.Update(ctx, id, UpdateFields{Active: &inactive})
}

// Delete removes the principal and its role associations.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *Service) invalidate(ctx context.Context, id int64) error {
	if s.authz == nil {
		return nil
	}
	return s.authz.InvalidatePrincipal(ctx, id)
}
