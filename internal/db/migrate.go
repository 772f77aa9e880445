package db

import (
	"fmt"

	"github.com/openaddresses/batch-sub000/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every persisted model: runs, job, results, map,
// job_errors and exports.
func AllModels() []interface{} {
	return []interface{}{
		&models.Run{},
		&models.Job{},
		&models.CoverageRegion{},
		&models.Result{},
		&models.JobError{},
		&models.Export{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// OpenMemory opens a migrated in-memory SQLite database for tests.
func OpenMemory() (*gorm.DB, error) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
