package repositories

import (
	"context"
	"fmt"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// AnomalyRepository handles scored login anomaly records
type AnomalyRepository struct {
	db *database.DB
}

// NewAnomalyRepository creates a new AnomalyRepository
func NewAnomalyRepository(db *database.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

const anomalyColumns = `id, account_id, account_name, ip_address, country_code,
	device_signature, anomaly_type, score, details, detected_at, status`

func scanAnomalyRow(row rowScanner) (*models.Anomaly, error) {
	var a models.Anomaly
	err := row.Scan(
		&a.ID, &a.AccountID, &a.AccountName, &a.IPAddress, &a.CountryCode,
		&a.DeviceSignature, &a.AnomalyType, &a.Score, &a.Details, &a.DetectedAt, &a.Status,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func scanAnomalyRows(rows pgx.Rows) ([]*models.Anomaly, error) {
	defer rows.Close()

	anomalies := make([]*models.Anomaly, 0)
	for rows.Next() {
		a, err := scanAnomalyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomalies = append(anomalies, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomaly rows: %w", err)
	}

	return anomalies, nil
}

// Create persists a new anomaly record and returns it with id and timestamps
func (r *AnomalyRepository) Create(ctx context.Context, a *models.Anomaly) (*models.Anomaly, error) {
	query := `
		INSERT INTO login_anomalies (
			account_id, account_name, ip_address, country_code,
			device_signature, anomaly_type, score, details, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + anomalyColumns

	result, err := scanAnomalyRow(r.db.Pool.QueryRow(ctx, query,
		a.AccountID, a.AccountName, a.IPAddress, a.CountryCode,
		a.DeviceSignature, a.AnomalyType, a.Score, a.Details, models.AnomalyStatusNew,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create anomaly: %w", err)
	}

	return result, nil
}

// GetByID returns one anomaly record
func (r *AnomalyRepository) GetByID(ctx context.Context, id string) (*models.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM login_anomalies WHERE id = $1`
	return scanAnomalyRow(r.db.Pool.QueryRow(ctx, query, id))
}

// UpdateStatus transitions an anomaly's status (operator actions only)
func (r *AnomalyRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE login_anomalies SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update anomaly status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns anomalies newest first, optionally filtered by status
func (r *AnomalyRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.Anomaly, error) {
	query := `
		SELECT ` + anomalyColumns + `
		FROM login_anomalies
		WHERE ($1 = '' OR status = $1)
		ORDER BY detected_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}

	return scanAnomalyRows(rows)
}

// Count returns the number of anomalies matching the status filter
func (r *AnomalyRepository) Count(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM login_anomalies WHERE ($1 = '' OR status = $1)`,
		status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count anomalies: %w", err)
	}
	return count, nil
}
