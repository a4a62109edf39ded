package repositories

import (
	"context"
	"fmt"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/lib/pq"
)

// UserProfileRepository handles per-account behavioral profiles
type UserProfileRepository struct {
	db *database.DB
}

// NewUserProfileRepository creates a new UserProfileRepository
func NewUserProfileRepository(db *database.DB) *UserProfileRepository {
	return &UserProfileRepository{db: db}
}

// Get returns the profile for an account, or models.ErrNotFound on first login
func (r *UserProfileRepository) Get(ctx context.Context, accountID string) (*models.AccountProfile, error) {
	query := `
		SELECT account_id, known_ips, known_countries, known_devices, login_hours,
		       last_login_at, last_login_ip, last_login_country, created_at, updated_at
		FROM user_profiles
		WHERE account_id = $1
	`

	var p models.AccountProfile
	err := r.db.Pool.QueryRow(ctx, query, accountID).Scan(
		&p.AccountID,
		pq.Array(&p.KnownIPs),
		pq.Array(&p.KnownCountries),
		pq.Array(&p.KnownDevices),
		pq.Array(&p.LoginHours),
		&p.LastLoginAt,
		&p.LastLoginIP,
		&p.LastLoginCountry,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &p, nil
}

// Upsert creates or replaces the profile for an account
func (r *UserProfileRepository) Upsert(ctx context.Context, p *models.AccountProfile) error {
	query := `
		INSERT INTO user_profiles (
			account_id, known_ips, known_countries, known_devices, login_hours,
			last_login_at, last_login_ip, last_login_country
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE SET
			known_ips = EXCLUDED.known_ips,
			known_countries = EXCLUDED.known_countries,
			known_devices = EXCLUDED.known_devices,
			login_hours = EXCLUDED.login_hours,
			last_login_at = EXCLUDED.last_login_at,
			last_login_ip = EXCLUDED.last_login_ip,
			last_login_country = EXCLUDED.last_login_country,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Pool.Exec(ctx, query,
		p.AccountID,
		pq.Array(p.KnownIPs),
		pq.Array(p.KnownCountries),
		pq.Array(p.KnownDevices),
		pq.Array(p.LoginHours),
		p.LastLoginAt,
		p.LastLoginIP,
		p.LastLoginCountry,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// Delete removes an account's profile (account deletion path)
func (r *UserProfileRepository) Delete(ctx context.Context, accountID string) error {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM user_profiles WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
