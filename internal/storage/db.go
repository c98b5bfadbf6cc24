package storage

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Rooms/internal/config"
	"github.com/dkeye/Rooms/internal/domain"
)

// Open connects to the configured database. The returned handle is meant to be
// threaded through constructors; nothing in this package keeps it globally.
func Open(cfg config.DBConfig, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown db driver %q", domain.ErrStorage, cfg.Driver)
	}

	level := logger.Silent
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStorage, cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	if cfg.Driver != "mysql" {
		// sqlite allows one writer, and every :memory: connection is its own database.
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("%w: ping %s: %w", domain.ErrStorage, cfg.Driver, err)
	}

	log.Info().Str("module", "storage").Str("driver", cfg.Driver).Msg("database connected")
	return db, nil
}

// Migrate creates or updates the tables the repository needs.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Room{}, &domain.Member{}, &domain.Round{}, &domain.Submission{}); err != nil {
		return fmt.Errorf("%w: migrate: %w", domain.ErrStorage, err)
	}
	return nil
}
