package repositories

import (
	"context"
	"fmt"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
)

// AuditEventRepository persists the operator-facing audit trail
type AuditEventRepository struct {
	db *database.DB
}

// NewAuditEventRepository creates a new AuditEventRepository
func NewAuditEventRepository(db *database.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Create appends one audit event
func (r *AuditEventRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (action, subject_type, subject_id, detail, actor_id)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.Action, event.SubjectType, event.SubjectID, event.Detail, event.ActorID)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}

// List returns audit events newest first
func (r *AuditEventRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, action, subject_type, subject_id, detail, actor_id, created_at
		FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		var e models.AuditEvent
		err := rows.Scan(&e.ID, &e.Action, &e.SubjectType, &e.SubjectID, &e.Detail, &e.ActorID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit event rows: %w", err)
	}

	return events, nil
}
