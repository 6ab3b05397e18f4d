package background

import (
	"context"
	"log/slog"
	"time"
)

// TokenReaper is the part of the token lifecycle the cleanup loop needs
type TokenReaper interface {
	ReapExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically reaps expired token records. The reaper is
// hygiene only: tokens stop working at their expiry whether or not this loop
// ever runs.
type CleanupManager struct {
	reaper   TokenReaper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(reaper TokenReaper, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		reaper:   reaper,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
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
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := cm.reaper.ReapExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to reap expired tokens", slog.Any("error", err))
		return
	}

	if deleted > 0 {
		cm.logger.Info("expired token cleanup completed", slog.Int64("rows_deleted", deleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
