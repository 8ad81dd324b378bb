package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. These records are never exposed to reporters.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records a staff action against the admin interface.
func (s *Service) LogAdminAction(ctx context.Context, typ EventType, actor, actorRole, ip, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:      typ,
		Actor:     actor,
		ActorRole: actorRole,
		IPAddress: ip,
		Message:   message,
		Metadata:  metadata,
	})
}

// LogCaseAction records a staff action touching one case record.
func (s *Service) LogCaseAction(ctx context.Context, actor, actorRole, ip, caseID, message string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeAdminAction,
		Actor:     actor,
		ActorRole: actorRole,
		IPAddress: ip,
		CaseID:    caseID,
		Message:   message,
	})
}
