package services

import (
	"context"
	"log/slog"

	"github.com/bastionsec/bastion/internal/models"
)

// AuditEventStore defines the persistence interface for audit events
type AuditEventStore interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	List(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error)
}

// AuditService records operator and automated security actions with a
// dual-write pattern (slog + database). Audit persistence failures are
// logged loudly but never fail the action being audited.
type AuditService struct {
	store  AuditEventStore
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(store AuditEventStore, logger *slog.Logger) *AuditService {
	return &AuditService{store: store, logger: logger}
}

// Record logs an audit event to slog and persists it
func (s *AuditService) Record(ctx context.Context, action, subjectType, subjectID, detail, actorID string) {
	s.logger.InfoContext(ctx, "audit event",
		slog.String("action", action),
		slog.String("subject_type", subjectType),
		slog.String("subject_id", subjectID),
		slog.String("detail", detail),
		slog.String("actor_id", actorID),
	)

	event := &models.AuditEvent{
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Detail:      detail,
		ActorID:     actorID,
	}

	if err := s.store.Create(ctx, event); err != nil {
		// Security-relevant audit gap: surface loudly, don't fail the caller
		s.logger.ErrorContext(ctx, "failed to persist audit event",
			slog.String("action", action),
			slog.String("subject_id", subjectID),
			slog.Any("error", err),
		)
	}
}

// Trail returns recent audit events for operator review
func (s *AuditService) Trail(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}
