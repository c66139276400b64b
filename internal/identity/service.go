package identity

import (
	"context"
	"errors"

	"github.com/guichet-civil/guichet/internal/platform/httpx"
	"github.com/guichet-civil/guichet/internal/shared"
)

// Resolver maps an authenticated session to a Profile and answers role
// questions. Profile creation on first login is the only implicit write in
// the system.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the profile for an identity, creating a citizen profile if
// none exists yet. fallbackName seeds full_name on first creation only.
func (s *Resolver) Resolve(ctx context.Context, identityID, fallbackName string) (*Profile, error) {
	if identityID == "" {
		return nil, httpx.ErrUnauthenticated
	}
	return s.repo.GetOrCreate(ctx, identityID, fallbackName)
}

// CurrentProfile resolves the profile bound to the session in context.
func (s *Resolver) CurrentProfile(ctx context.Context) (*Profile, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return nil, httpx.ErrUnauthenticated
	}
	return s.Resolve(ctx, sess.User(), "")
}

// RequireRole resolves the current profile and fails with ErrForbidden when
// its role is not in the allowed set.
func (s *Resolver) RequireRole(ctx context.Context, allowed ...Role) (*Profile, error) {
	profile, err := s.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	if !profile.Role.In(allowed...) {
		return nil, httpx.ErrForbidden
	}
	return profile, nil
}

// IsAgent reports whether the current session belongs to staff (agent or admin).
func (s *Resolver) IsAgent(ctx context.Context) bool {
	profile, err := s.CurrentProfile(ctx)
	return err == nil && profile.Role.IsStaff()
}

// IsAdmin reports whether the current session belongs to an admin.
func (s *Resolver) IsAdmin(ctx context.Context) bool {
	profile, err := s.CurrentProfile(ctx)
	return err == nil && profile.Role == RoleAdmin
}

// RoleFor returns the role for an identity without creating a profile.
// Used by the access gate, which must never write.
func (s *Resolver) RoleFor(ctx context.Context, identityID string) (Role, error) {
	profile, err := s.repo.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			// Profile creation may still be in flight right after signup.
			return RoleCitizen, nil
		}
		return "", err
	}
	return profile.Role, nil
}

// UpdateProfile applies citizen-editable fields to the current profile.
func (s *Resolver) UpdateProfile(ctx context.Context, upd ProfileUpdate) error {
	profile, err := s.CurrentProfile(ctx)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, profile.ID, upd)
}
