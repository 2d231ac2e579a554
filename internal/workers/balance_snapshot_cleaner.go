package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type SnapshotRemover interface {
	RemoveOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error)
}

// BalanceSnapshotCleaner removes cached balance snapshots that outlived their TTL.
type BalanceSnapshotCleaner struct {
	logger   *slog.Logger
	balances SnapshotRemover

	// Snapshots older than this are removed
	ttl time.Duration

	// Cron spec, e.g. "@every 30m"
	schedule string
}

func NewBalanceSnapshotCleaner(
	logger *slog.Logger,
	balances SnapshotRemover,
	ttl time.Duration,
	schedule string,
) *BalanceSnapshotCleaner {
	return &BalanceSnapshotCleaner{
		logger:   logger,
		balances: balances,
		ttl:      ttl,
		schedule: schedule,
	}
}

// Start runs one cleanup immediately and then on the schedule until ctx is done.
func (c *BalanceSnapshotCleaner) Start(ctx context.Context) error {
	scheduler := cron.New(cron.WithLogger(cronLogger{c.logger}))

	if _, err := scheduler.AddFunc(c.schedule, func() {
		if err := c.cleanup(ctx); err != nil {
			c.logger.ErrorContext(ctx, "Balance snapshot cleanup failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid snapshot cleanup schedule %q: %w", c.schedule, err)
	}

	c.logger.InfoContext(ctx, "Starting balance snapshot cleaner",
		"ttl", c.ttl.String(),
		"schedule", c.schedule)

	if err := c.cleanup(ctx); err != nil {
		c.logger.ErrorContext(ctx, "Initial balance snapshot cleanup failed", "error", err)
	}

	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()

	c.logger.Info("Balance snapshot cleaner stopped")
	return nil
}

func (c *BalanceSnapshotCleaner) cleanup(ctx context.Context) error {
	count, err := c.balances.RemoveOldSnapshots(ctx, c.ttl)
	if err != nil {
		return err
	}

	if count > 0 {
		c.logger.InfoContext(ctx, "Removed old balance snapshots", "count", count, "older_than", c.ttl.String())
	} else {
		c.logger.DebugContext(ctx, "No old balance snapshots to remove")
	}
	return nil
}

// cronLogger routes scheduler messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
