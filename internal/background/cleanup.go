package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastionsec/bastion/internal/repositories"
)

// CleanupManager periodically prunes expired and aged-out rows: lapsed
// temporary blocks, login attempts and firewall events past retention, and
// stale geo-cache entries.
type CleanupManager struct {
	blockRepo   *repositories.IPBlockRepository
	attemptRepo *repositories.LoginAttemptRepository
	eventRepo   *repositories.FirewallEventRepository
	geoRepo     *repositories.GeoCacheRepository
	logger      *slog.Logger

	interval         time.Duration
	attemptRetention time.Duration
	eventRetention   time.Duration

	stopCh chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	blockRepo *repositories.IPBlockRepository,
	attemptRepo *repositories.LoginAttemptRepository,
	eventRepo *repositories.FirewallEventRepository,
	geoRepo *repositories.GeoCacheRepository,
	logger *slog.Logger,
	interval, attemptRetention, eventRetention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		blockRepo:        blockRepo,
		attemptRepo:      attemptRepo,
		eventRepo:        eventRepo,
		geoRepo:          geoRepo,
		logger:           logger,
		interval:         interval,
		attemptRetention: attemptRetention,
		eventRetention:   eventRetention,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting retention cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()
	cm.sweep(cleanupCtx, "expired_blocks", func(ctx context.Context) (int64, error) {
		return cm.blockRepo.DeleteExpired(ctx)
	})
	cm.sweep(cleanupCtx, "aged_attempts", func(ctx context.Context) (int64, error) {
		return cm.attemptRepo.DeleteOlderThan(ctx, now.Add(-cm.attemptRetention))
	})
	cm.sweep(cleanupCtx, "aged_firewall_events", func(ctx context.Context) (int64, error) {
		return cm.eventRepo.DeleteOlderThan(ctx, now.Add(-cm.eventRetention))
	})
	cm.sweep(cleanupCtx, "expired_geo_cache", func(ctx context.Context) (int64, error) {
		return cm.geoRepo.DeleteExpired(ctx)
	})
}

// sweep runs one deletion and logs the outcome. One failing sweep does not
// stop the others.
func (cm *CleanupManager) sweep(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	rowsDeleted, err := fn(ctx)
	if err != nil {
		cm.logger.Error("cleanup sweep failed", slog.String("sweep", name), slog.Any("error", err))
		return
	}
	if rowsDeleted > 0 {
		cm.logger.Info("cleanup sweep completed", slog.String("sweep", name), slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
