package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/swaptrade/internal/config"
	"github.com/Aidin1998/swaptrade/pkg/metrics"
	"github.com/Aidin1998/swaptrade/pkg/models"
)

// Open connects to the configured database driver
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresDB(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	case "sqlite":
		return NewSQLiteDB(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates or updates every swaptrade table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// ReportPoolStats publishes connection pool gauges until ctx is done
func ReportPoolStats(ctx context.Context, db *gorm.DB, name string, interval time.Duration, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warn("Pool stats unavailable", zap.Error(err))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := sqlDB.Stats()
			metrics.DBOpenConns.WithLabelValues(name).Set(float64(stats.OpenConnections))
			metrics.DBInUseConns.WithLabelValues(name).Set(float64(stats.InUse))
		}
	}
}
