package repositories

import (
	"context"
	"fmt"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
)

// WhitelistRepository handles the firewall/login exemption list
type WhitelistRepository struct {
	db *database.DB
}

// NewWhitelistRepository creates a new WhitelistRepository
func NewWhitelistRepository(db *database.DB) *WhitelistRepository {
	return &WhitelistRepository{db: db}
}

// Add inserts a whitelist entry; adding an existing entry is a no-op
func (r *WhitelistRepository) Add(ctx context.Context, kind, value, createdBy string) error {
	query := `
		INSERT INTO firewall_whitelist (kind, value, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, value) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, query, kind, value, createdBy)
	if err != nil {
		return fmt.Errorf("failed to add whitelist entry: %w", err)
	}
	return nil
}

// Remove deletes a whitelist entry
func (r *WhitelistRepository) Remove(ctx context.Context, kind, value string) error {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM firewall_whitelist WHERE kind = $1 AND value = $2`, kind, value)
	if err != nil {
		return fmt.Errorf("failed to remove whitelist entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ContainsIP reports whether the IP is whitelisted
func (r *WhitelistRepository) ContainsIP(ctx context.Context, ip string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM firewall_whitelist WHERE kind = $1 AND value = $2)`,
		models.WhitelistKindIP, ip).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ip whitelist: %w", err)
	}
	return exists, nil
}

// URISubstrings returns all whitelisted URI substrings
func (r *WhitelistRepository) URISubstrings(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT value FROM firewall_whitelist WHERE kind = $1`, models.WhitelistKindURI)
	if err != nil {
		return nil, fmt.Errorf("failed to query uri whitelist: %w", err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist row: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating whitelist rows: %w", err)
	}

	return values, nil
}

// List returns all whitelist entries
func (r *WhitelistRepository) List(ctx context.Context) ([]*models.WhitelistEntry, error) {
	query := `
		SELECT id, kind, value, created_by, created_at
		FROM firewall_whitelist
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.WhitelistEntry, 0)
	for rows.Next() {
		var e models.WhitelistEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Value, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating whitelist rows: %w", err)
	}

	return entries, nil
}
