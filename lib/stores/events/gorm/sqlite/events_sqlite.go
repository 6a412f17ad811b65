package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	events_gorm "github.com/HORNET-Storage/trunk-relay/lib/stores/events/gorm"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// InitStore opens (creating if needed) the SQLite database at path
func InitStore(path string, cfg types.DatabaseConfig, ceiling int) (*events_gorm.GormEventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	// journal_mode=WAL lets readers keep their snapshot while a replace commits,
	// and _txlock=immediate serializes writers at BEGIN instead of at commit.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=30000&_txlock=immediate&_synchronous=normal&_foreign_keys=on", path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %v", err)
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
	sqlDB.SetConnMaxLifetime(60 * time.Minute)
	sqlDB.SetConnMaxIdleTime(20 * time.Minute)

	store, err := events_gorm.NewStore(db, ceiling)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	db.Exec("PRAGMA journal_size_limit = 67110000")
	db.Exec("PRAGMA temp_store = MEMORY")

	return store, nil
}
