package repositories

import (
	"context"
	"fmt"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
)

// IPBlockRepository handles database operations for blocked IPs
type IPBlockRepository struct {
	db *database.DB
}

// NewIPBlockRepository creates a new IPBlockRepository
func NewIPBlockRepository(db *database.DB) *IPBlockRepository {
	return &IPBlockRepository{db: db}
}

const ipBlockColumns = `id, ip_address, blocked_at, expires_at, permanent, reason, blocked_by`

func scanIPBlockRow(row rowScanner) (*models.IPBlock, error) {
	var b models.IPBlock
	err := row.Scan(&b.ID, &b.IPAddress, &b.BlockedAt, &b.ExpiresAt, &b.Permanent, &b.Reason, &b.BlockedBy)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &b, nil
}

// Upsert creates or replaces the block for an IP. A re-block always keeps
// the later expiry so escalation never shortens an existing lockout.
func (r *IPBlockRepository) Upsert(ctx context.Context, block *models.IPBlock) error {
	query := `
		INSERT INTO blocked_ips (ip_address, blocked_at, expires_at, permanent, reason, blocked_by)
		VALUES ($1, CURRENT_TIMESTAMP, $2, $3, $4, $5)
		ON CONFLICT (ip_address) DO UPDATE SET
			blocked_at = CURRENT_TIMESTAMP,
			expires_at = CASE
				WHEN blocked_ips.permanent OR EXCLUDED.permanent THEN NULL
				WHEN blocked_ips.expires_at > EXCLUDED.expires_at THEN blocked_ips.expires_at
				ELSE EXCLUDED.expires_at
			END,
			permanent = blocked_ips.permanent OR EXCLUDED.permanent,
			reason = EXCLUDED.reason,
			blocked_by = EXCLUDED.blocked_by
	`

	_, err := r.db.Pool.Exec(ctx, query,
		block.IPAddress, block.ExpiresAt, block.Permanent, block.Reason, block.BlockedBy)
	if err != nil {
		return fmt.Errorf("failed to upsert ip block: %w", err)
	}
	return nil
}

// Get returns the block row for an IP whether or not it is still in force.
// Callers decide what a lapsed row means; the login throttle couples lazy
// expiry with clearing the IP's failure history.
func (r *IPBlockRepository) Get(ctx context.Context, ip string) (*models.IPBlock, error) {
	query := `SELECT ` + ipBlockColumns + ` FROM blocked_ips WHERE ip_address = $1`
	return scanIPBlockRow(r.db.Pool.QueryRow(ctx, query, ip))
}

// Delete removes the block for an IP. Missing rows map to ErrNotFound so
// callers can treat unblock-of-unblocked as a no-op.
func (r *IPBlockRepository) Delete(ctx context.Context, ip string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM blocked_ips WHERE ip_address = $1`, ip)
	if err != nil {
		return fmt.Errorf("failed to delete ip block: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns all block rows, newest first
func (r *IPBlockRepository) List(ctx context.Context, limit, offset int) ([]*models.IPBlock, error) {
	query := `
		SELECT ` + ipBlockColumns + ` FROM blocked_ips
		ORDER BY blocked_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip blocks: %w", err)
	}
	defer rows.Close()

	blocks := make([]*models.IPBlock, 0)
	for rows.Next() {
		block, err := scanIPBlockRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ip block: %w", err)
		}
		blocks = append(blocks, block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ip block rows: %w", err)
	}

	return blocks, nil
}

// Count returns the total number of block rows
func (r *IPBlockRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM blocked_ips`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ip blocks: %w", err)
	}
	return count, nil
}

// DeleteExpired removes lapsed non-permanent blocks (hygiene sweep)
func (r *IPBlockRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM blocked_ips
		WHERE permanent = FALSE AND expires_at <= CURRENT_TIMESTAMP
	`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired ip blocks: %w", err)
	}
	return result.RowsAffected(), nil
}
