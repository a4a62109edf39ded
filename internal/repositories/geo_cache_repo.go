package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionsec/bastion/internal/database"
)

// GeoCacheRepository caches country lookups so the external resolver is hit
// at most once per IP per TTL
type GeoCacheRepository struct {
	db *database.DB
}

// NewGeoCacheRepository creates a new GeoCacheRepository
func NewGeoCacheRepository(db *database.DB) *GeoCacheRepository {
	return &GeoCacheRepository{db: db}
}

// Get returns the cached country code for an IP if the entry has not
// expired. Returns models.ErrNotFound on miss.
func (r *GeoCacheRepository) Get(ctx context.Context, ip string) (string, error) {
	query := `
		SELECT country_code FROM geo_cache
		WHERE ip_address = $1 AND expires_at > CURRENT_TIMESTAMP
	`

	var country string
	err := r.db.Pool.QueryRow(ctx, query, ip).Scan(&country)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return country, nil
}

// Put stores a resolved country for an IP with the given TTL. Empty results
// are cached too, so an unresolvable IP does not cause a lookup per request.
func (r *GeoCacheRepository) Put(ctx context.Context, ip, country string, ttl time.Duration) error {
	query := `
		INSERT INTO geo_cache (ip_address, country_code, resolved_at, expires_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP, $3)
		ON CONFLICT (ip_address) DO UPDATE SET
			country_code = EXCLUDED.country_code,
			resolved_at = CURRENT_TIMESTAMP,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.db.Pool.Exec(ctx, query, ip, country, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to cache geo lookup: %w", err)
	}
	return nil
}

// DeleteExpired removes lapsed cache rows (hygiene sweep)
func (r *GeoCacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM geo_cache WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired geo cache rows: %w", err)
	}
	return result.RowsAffected(), nil
}
