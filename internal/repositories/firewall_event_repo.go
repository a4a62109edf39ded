package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
)

// FirewallEventRepository handles write-only firewall block events
type FirewallEventRepository struct {
	db *database.DB
}

// NewFirewallEventRepository creates a new FirewallEventRepository
func NewFirewallEventRepository(db *database.DB) *FirewallEventRepository {
	return &FirewallEventRepository{db: db}
}

// Record persists one block event. The caller must not send the 403 until
// this has succeeded: the response has to reflect a persisted decision.
func (r *FirewallEventRepository) Record(ctx context.Context, event *models.FirewallBlockEvent) error {
	query := `
		INSERT INTO firewall_blocks (ip_address, request_uri, method, user_agent, rule_matched, incident_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.IPAddress,
		event.RequestURI,
		event.Method,
		event.UserAgent,
		event.RuleMatched,
		event.IncidentID,
	)
	if err != nil {
		return fmt.Errorf("failed to record firewall block: %w", err)
	}
	return nil
}

// List returns block events newest first
func (r *FirewallEventRepository) List(ctx context.Context, limit, offset int) ([]*models.FirewallBlockEvent, error) {
	query := `
		SELECT id, ip_address, request_uri, method, user_agent, rule_matched, incident_id, blocked_at
		FROM firewall_blocks
		ORDER BY blocked_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query firewall blocks: %w", err)
	}
	defer rows.Close()

	events := make([]*models.FirewallBlockEvent, 0)
	for rows.Next() {
		var e models.FirewallBlockEvent
		err := rows.Scan(&e.ID, &e.IPAddress, &e.RequestURI, &e.Method, &e.UserAgent, &e.RuleMatched, &e.IncidentID, &e.BlockedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan firewall block: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating firewall block rows: %w", err)
	}

	return events, nil
}

// Count returns the total number of block events
func (r *FirewallEventRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM firewall_blocks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count firewall blocks: %w", err)
	}
	return count, nil
}

// DeleteOlderThan prunes block events past the retention window
func (r *FirewallEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM firewall_blocks WHERE blocked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune firewall blocks: %w", err)
	}
	return result.RowsAffected(), nil
}
