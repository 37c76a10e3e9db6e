package db

import (
	"context"
	"fmt"
	"time"

	"shieldpool/internal/config"
	"shieldpool/internal/metrics"
	"shieldpool/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to PostgreSQL. Duplicate-key failures are translated to
// gorm.ErrDuplicatedKey, which the pool store relies on.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())
	}
	return gdb, nil
}

// InitDB opens the configured database into DB.
func InitDB() error {
	if config.AppConfig == nil {
		return fmt.Errorf("config not loaded")
	}
	gdb, err := Open(config.AppConfig.Database)
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return err
	}
	DB = gdb
	metrics.DBConnectionStatus.Set(1)
	logrus.Info("Database connected successfully")
	return nil
}

// Migrate creates the pool tables and applies data migrations.
func Migrate(gdb *gorm.DB) error {
	logrus.Info("Starting database schema migration with GORM AutoMigrate...")
	if err := gdb.AutoMigrate(models.PoolModels()...); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if err := RunDataMigrations(sqlDB); err != nil {
		return fmt.Errorf("data migrations failed: %w", err)
	}
	logrus.Info("Database schema migrated successfully")
	return nil
}

// ReportPoolStats publishes connection pool stats until ctx is done.
func ReportPoolStats(ctx context.Context, gdb *gorm.DB, interval time.Duration) {
	sqlDB, err := gdb.DB()
	if err != nil {
		logrus.WithError(err).Warn("Database pool stats unavailable")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := sqlDB.PingContext(ctx); err != nil {
			metrics.DBConnectionStatus.Set(0)
		} else {
			metrics.DBConnectionStatus.Set(1)
		}
		stats := sqlDB.Stats()
		metrics.DBConnectionActive.Set(float64(stats.InUse))
		metrics.DBConnectionIdle.Set(float64(stats.Idle))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
