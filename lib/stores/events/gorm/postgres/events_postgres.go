package postgres

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	events_gorm "github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// InitStore connects to the PostgreSQL database named by cfg.DSN. Several relay
// processes may share it; replacement atomicity comes from the unique index on
// replace_key rather than from anything held in process.
func InitStore(cfg types.DatabaseConfig, ceiling int) (*events_gorm.GormEventStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %v", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 16
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 4
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	store, err := events_gorm.NewStore(db, ceiling)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return store, nil
}
