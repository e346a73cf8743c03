package bootstrap

import (
	"zero-entropy-be/internal/config"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/pkg/database"

	"gorm.io/gorm"
)

// OpenDatabase connects with the configured pool and routes gorm's log into log.
func OpenDatabase(cfg config.DatabaseConfig, log logger.ILogger) (*gorm.DB, error) {
	return database.NewGormDBFromDSN(cfg.Connection, database.Options{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Logger:          logger.NewGormAdapter(log, "GORM", logger.ParseGormLevel(cfg.LogLevel), cfg.SlowThreshold),
	})
}
