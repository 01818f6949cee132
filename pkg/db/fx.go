package db

import (
	"time"

	"github.com/atriumhq/atrium/internal/config"
	obslogger "github.com/atriumhq/atrium/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module provides the shared connection-pooled gorm handle.
var Module = fx.Module("db",
	fx.Provide(Open),
)

// Open builds a *gorm.DB with the configured dialect and pool limits.
func Open(cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)

	return conn, nil
}
