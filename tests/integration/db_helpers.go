package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/repositories"
)

// TestDB manages a PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("bastion"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	quietLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := database.NewFromPool(pool, quietLogger)

	// Migrations are embedded in the database package
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"audit_events",
		"geo_cache",
		"login_anomalies",
		"user_profiles",
		"firewall_whitelist",
		"firewall_blocks",
		"login_attempts",
		"blocked_ips",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.IPBlockRepository,
	*repositories.WhitelistRepository,
	*repositories.LoginAttemptRepository,
	*repositories.FirewallEventRepository,
	*repositories.UserProfileRepository,
	*repositories.AnomalyRepository,
	*repositories.GeoCacheRepository,
	*repositories.AuditEventRepository,
) {
	return repositories.NewIPBlockRepository(db),
		repositories.NewWhitelistRepository(db),
		repositories.NewLoginAttemptRepository(db),
		repositories.NewFirewallEventRepository(db),
		repositories.NewUserProfileRepository(db),
		repositories.NewAnomalyRepository(db),
		repositories.NewGeoCacheRepository(db),
		repositories.NewAuditEventRepository(db)
}

// SeedBlockedIP inserts a block row directly, bypassing the throttle service
func SeedBlockedIP(ctx context.Context, pool *pgxpool.Pool, ip, reason string, permanent bool, expiresAt *time.Time) error {
	query := `
		INSERT INTO blocked_ips (ip_address, reason, permanent, expires_at, blocked_by)
		VALUES ($1, $2, $3, $4, 'test')
	`
	if _, err := pool.Exec(ctx, query, ip, reason, permanent, expiresAt); err != nil {
		return fmt.Errorf("failed to insert blocked ip: %w", err)
	}
	return nil
}

// SeedLoginFailures inserts n failed attempts for an IP, spread over the past window
func SeedLoginFailures(ctx context.Context, pool *pgxpool.Pool, ip, identity string, n int, window time.Duration) error {
	query := `
		INSERT INTO login_attempts (ip_address, identity, success, attempted_at)
		VALUES ($1, $2, false, $3)
	`
	for i := 0; i < n; i++ {
		at := time.Now().Add(-window * time.Duration(i) / time.Duration(n+1))
		if _, err := pool.Exec(ctx, query, ip, identity, at); err != nil {
			return fmt.Errorf("failed to insert login attempt: %w", err)
		}
	}
	return nil
}

// SeedWhitelistEntry inserts an ip or uri whitelist row
func SeedWhitelistEntry(ctx context.Context, pool *pgxpool.Pool, kind, value string) error {
	query := `
		INSERT INTO firewall_whitelist (kind, value, created_by)
		VALUES ($1, $2, 'test')
	`
	if _, err := pool.Exec(ctx, query, kind, value); err != nil {
		return fmt.Errorf("failed to insert whitelist entry: %w", err)
	}
	return nil
}

// CountRows returns the row count of a table
func CountRows(ctx context.Context, pool *pgxpool.Pool, table string) (int, error) {
	var count int
	err := pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}
