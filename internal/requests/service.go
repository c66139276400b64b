package requests

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/platform/httpx"
)

// Notifier is told about applied status changes. Delivery is best effort;
// a notification failure never fails the transition.
type Notifier interface {
	StatusChanged(ctx context.Context, req *Request, ev *Event)
}

// Service is the request lifecycle controller: it validates and applies
// status transitions, writes events, and enforces role checks. The
// presentation layer never writes status columns directly.
type Service struct {
	repo     Repository
	resolver *identity.Resolver
	policy   TransitionPolicy
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs the lifecycle controller. A nil policy defaults to
// AllowAny; a nil notifier disables notifications.
func NewService(repo Repository, resolver *identity.Resolver, policy TransitionPolicy, notifier Notifier, logger *slog.Logger) *Service {
	if policy == nil {
		policy = AllowAny
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		policy:   policy,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create submits a new request owned by the current citizen. Any
// authenticated profile may submit; staff occasionally file on behalf of
// walk-ins under their own account.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Request, error) {
	profile, err := s.resolver.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	return s.repo.Create(ctx, profile.ID, input)
}

// GetForViewer fetches a request scoped to the caller: staff see any
// request, citizens only their own (a foreign id reads as not found).
func (s *Service) GetForViewer(ctx context.Context, id string) (*Request, error) {
	profile, err := s.resolver.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	if profile.Role.IsStaff() {
		return s.repo.Get(ctx, id)
	}
	return s.repo.GetForCitizen(ctx, id, profile.ID)
}

// ListMine returns the current citizen's requests, newest first.
func (s *Service) ListMine(ctx context.Context) ([]Request, error) {
	profile, err := s.resolver.CurrentProfile(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListForCitizen(ctx, profile.ID)
}

// ListAll returns the staff queue.
func (s *Service) ListAll(ctx context.Context, filter ListFilter) ([]Request, int, error) {
	if _, err := s.resolver.RequireRole(ctx, identity.RoleAgent, identity.RoleAdmin); err != nil {
		return nil, 0, err
	}
	return s.repo.ListAll(ctx, filter)
}

// UpdateStatus applies a lifecycle transition. Staff only. The status update
// and its event are committed together; the event always records
// previous/new status and the optional comment.
func (s *Service) UpdateStatus(ctx context.Context, requestID string, newStatus Status, comment *string) (*Event, error) {
	actor, err := s.resolver.RequireRole(ctx, identity.RoleAgent, identity.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, newStatus)
	}

	current, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.policy(current.Status, newStatus); err != nil {
		return nil, err
	}
	if comment != nil && *comment == "" {
		comment = nil
	}

	event, err := s.repo.ApplyStatus(ctx, requestID, newStatus, actor.ID, comment)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("request status updated",
			slog.String("request_id", requestID),
			slog.String("from", string(current.Status)),
			slog.String("to", string(newStatus)))
	}

	if s.notifier != nil {
		updated := *current
		updated.Status = newStatus
		s.notifier.StatusChanged(ctx, &updated, event)
	}
	return event, nil
}

// Assign sets the assignee. Staff only, and the assignee must itself be
// staff; the original relied on the button being hidden, here the check is
// explicit.
func (s *Service) Assign(ctx context.Context, requestID, agentID string) error {
	if _, err := s.resolver.RequireRole(ctx, identity.RoleAgent, identity.RoleAdmin); err != nil {
		return err
	}
	role, err := s.resolver.RoleFor(ctx, agentID)
	if err != nil {
		return err
	}
	if !role.IsStaff() {
		return fmt.Errorf("%w: assignee is not staff", httpx.ErrValidation)
	}
	return s.repo.Assign(ctx, requestID, agentID)
}

// AddNote replaces the staff-only notes field, independent of status.
func (s *Service) AddNote(ctx context.Context, requestID, notes string) error {
	if _, err := s.resolver.RequireRole(ctx, identity.RoleAgent, identity.RoleAdmin); err != nil {
		return err
	}
	return s.repo.UpdateNotes(ctx, requestID, notes)
}

// Events returns the audit trail for a request the caller may view.
func (s *Service) Events(ctx context.Context, requestID string) ([]Event, error) {
	if _, err := s.GetForViewer(ctx, requestID); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, requestID)
}

// CountByStatus returns dashboard counters. Staff only.
func (s *Service) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	if _, err := s.resolver.RequireRole(ctx, identity.RoleAgent, identity.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.CountByStatus(ctx)
}
