package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/icodeforyou/meterit-go/config"
)

type MaintenanceStore interface {
	Backup(ctx context.Context) error
	PurgeBackups(ctx context.Context, retentionDays int) error
	PurgeLog(ctx context.Context, maxEntries int) error
	PurgePricePoints(ctx context.Context, retentionDays int) error
	PriceReader
}

// NewMaintenanceTask backs up the database and trims what grows without
// bound. Readings are never purged.
func NewMaintenanceTask(logger *slog.Logger, db MaintenanceStore, cnfg *config.AppConfig) func() {
	return func() {
		logger.Debug("running maintenance task...")

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		if err := db.Backup(ctx); err != nil {
			logger.Error("database backup error", slog.Any("error", err))
		}

		if err := db.PurgeBackups(ctx, cnfg.Database.GetBackupRetentionDays()); err != nil {
			logger.Error("backup maintenance error", slog.Any("error", err))
		}

		if err := db.PurgeLog(ctx, cnfg.Logging.GetDbMaxEntries()); err != nil {
			logger.Error("log maintenance error", slog.Any("error", err))
		}

		if err := db.PurgePricePoints(ctx, cnfg.Database.GetDataRetentionDays()); err != nil {
			logger.Error("price_point maintenance error", slog.Any("error", err))
		}

		until, err := loadPricedUntil(ctx, db, time.Now())
		switch {
		case err != nil:
			logger.Error("price horizon check error", slog.Any("error", err))
		case !until.After(time.Now()):
			logger.Warn("no price stored for the current period")
		default:
			logger.Info("prices stored", slog.Time("pricedUntil", until))
		}

		logger.Info("maintenance task done")
	}
}
