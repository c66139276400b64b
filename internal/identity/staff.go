package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guichet-civil/guichet/internal/platform/httpx"
	"github.com/guichet-civil/guichet/internal/shared"
)

// AccountCreator provisions a login account for a new staff member. The auth
// module implements this; the indirection keeps identity free of credential
// storage.
type AccountCreator interface {
	CreateAccount(ctx context.Context, email, password, fullName string) (string, error)
}

// StaffService covers admin-only staff management: creating agents, changing
// roles, and demotion (the soft delete — profiles are never removed).
type StaffService struct {
	repo     Repository
	resolver *Resolver
	accounts AccountCreator
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewStaffService constructs a StaffService.
func NewStaffService(repo Repository, resolver *Resolver, accounts AccountCreator, audit *shared.AuditLogger, logger *slog.Logger) *StaffService {
	return &StaffService{repo: repo, resolver: resolver, accounts: accounts, audit: audit, logger: logger}
}

// CreateAgentInput carries the fields for a new staff account.
type CreateAgentInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	FullName string `validate:"required,max=200"`
	Role     Role   `validate:"required"`
	Phone    *string
}

// CreateAgent provisions an account and a staff profile. Admin only.
func (s *StaffService) CreateAgent(ctx context.Context, input CreateAgentInput) (*Profile, error) {
	actor, err := s.resolver.RequireRole(ctx, RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !input.Role.In(RoleAgent, RoleAdmin) {
		return nil, fmt.Errorf("%w: role must be agent or admin", httpx.ErrValidation)
	}

	id, err := s.accounts.CreateAccount(ctx, input.Email, input.Password, input.FullName)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.GetOrCreate(ctx, id, input.FullName)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRole(ctx, id, input.Role); err != nil {
		return nil, err
	}
	if input.Phone != nil {
		if err := s.repo.Update(ctx, id, ProfileUpdate{Phone: input.Phone}); err != nil {
			return nil, err
		}
	}
	profile.Role = input.Role

	s.record(ctx, actor.ID, "staff.create", id, map[string]any{"role": string(input.Role)})
	return profile, nil
}

// UpdateRole changes a staff member's role. Admins cannot change their own.
func (s *StaffService) UpdateRole(ctx context.Context, agentID string, newRole Role) error {
	actor, err := s.resolver.RequireRole(ctx, RoleAdmin)
	if err != nil {
		return err
	}
	if !newRole.Valid() {
		return fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, newRole)
	}
	if agentID == actor.ID && newRole != RoleAdmin {
		return fmt.Errorf("%w: cannot change your own role", httpx.ErrForbidden)
	}
	if err := s.repo.UpdateRole(ctx, agentID, newRole); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "staff.update_role", agentID, map[string]any{"role": string(newRole)})
	return nil
}

// Demote strips staff access by setting the role back to citizen. Admins
// cannot demote themselves.
func (s *StaffService) Demote(ctx context.Context, agentID string) error {
	actor, err := s.resolver.RequireRole(ctx, RoleAdmin)
	if err != nil {
		return err
	}
	if agentID == actor.ID {
		return fmt.Errorf("%w: cannot demote your own account", httpx.ErrForbidden)
	}
	if err := s.repo.UpdateRole(ctx, agentID, RoleCitizen); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "staff.demote", agentID, nil)
	return nil
}

// ListStaff returns all agent and admin profiles. Staff only.
func (s *StaffService) ListStaff(ctx context.Context) ([]Profile, error) {
	if _, err := s.resolver.RequireRole(ctx, RoleAgent, RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListStaff(ctx)
}

func (s *StaffService) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "profile",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record staff audit", slog.Any("error", err))
	}
}
