package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
)

// LoginAttemptRepository handles the append-only attempt ledger
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record appends one attempt to the ledger
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (ip_address, identity, success, user_agent, country_code)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.IPAddress,
		attempt.Identity,
		attempt.Success,
		attempt.UserAgent,
		attempt.CountryCode,
	)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// CountRecentFailures returns the number of failed attempts from an IP since
// the given time
func (r *LoginAttemptRepository) CountRecentFailures(ctx context.Context, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent failures: %w", err)
	}
	return count, nil
}

// ClearFailures deletes all failed attempt rows for an IP. Run after a
// successful login or a manual unblock so stale counts cannot re-trip a tier.
func (r *LoginAttemptRepository) ClearFailures(ctx context.Context, ip string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM login_attempts WHERE ip_address = $1 AND success = false`, ip)
	if err != nil {
		return fmt.Errorf("failed to clear failures: %w", err)
	}
	return nil
}

// List returns attempts newest first, optionally filtered by outcome
func (r *LoginAttemptRepository) List(ctx context.Context, success *bool, limit, offset int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, ip_address, identity, success, attempted_at, user_agent, country_code
		FROM login_attempts
		WHERE ($1::boolean IS NULL OR success = $1)
		ORDER BY attempted_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, success, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		err := rows.Scan(&a.ID, &a.IPAddress, &a.Identity, &a.Success, &a.AttemptedAt, &a.UserAgent, &a.CountryCode)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating login attempt rows: %w", err)
	}

	return attempts, nil
}

// Count returns the total number of attempts matching the outcome filter
func (r *LoginAttemptRepository) Count(ctx context.Context, success *bool) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE ($1::boolean IS NULL OR success = $1)`,
		success).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count, nil
}

// DeleteOlderThan prunes ledger rows past the retention window
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune login attempts: %w", err)
	}
	return result.RowsAffected(), nil
}
