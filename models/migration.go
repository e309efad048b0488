package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates the tables this service owns. migration_runs and the target
// tables belong to the import pipeline and are not touched here.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Discrepancy{},
		&ParallelRunSummary{},
		&ProcessTransition{},
	)
}
