package db

import (
	"fmt"
	"packrat/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (or creates) the ledger database and applies schema migration.
// Migration is additive only: new nullable columns never break existing rows.
func Open(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := gdb.AutoMigrate(&model.Job{}, &model.Execution{}, &model.Transfer{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return gdb, nil
}
