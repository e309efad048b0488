package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MigrationRunStatus string

const (
	MigrationRunStatusImporting MigrationRunStatus = "importing"
	MigrationRunStatusComplete  MigrationRunStatus = "complete"
	MigrationRunStatusFailed    MigrationRunStatus = "failed"
)

// MigrationRun is written by the bulk import pipeline; this service only reads it.
type MigrationRun struct {
	ID           string             `gorm:"primaryKey;size:64" json:"id"`
	EntityType   string             `gorm:"size:50;not null;index" json:"entity_type"`
	Status       MigrationRunStatus `gorm:"size:20;not null" json:"status"`
	StartedAt    time.Time          `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time         `json:"completed_at"`
	ImportedRows int64              `gorm:"not null;default:0" json:"imported_rows"`
}

// MigrationRowError is one source row the import pipeline could not load.
type MigrationRowError struct {
	ID        int       `gorm:"primary_key" json:"id"`
	RunId     string    `gorm:"size:64;not null;index" json:"run_id"`
	RawValue  string    `gorm:"type:text" json:"raw_value"`
	ErrorType string    `gorm:"size:50" json:"error_type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type TimeWindow struct {
	From time.Time
	To   time.Time
}

// GormMigrationRunReader reads the import pipeline's tables and the live target tables.
type GormMigrationRunReader struct {
	DB *gorm.DB
}

func NewMigrationRunReader(db *gorm.DB) *GormMigrationRunReader {
	return &GormMigrationRunReader{DB: db}
}

func (r *GormMigrationRunReader) GetRun(ctx context.Context, runId string) (*MigrationRun, error) {
	var run MigrationRun
	err := r.DB.WithContext(ctx).Where("id = ?", runId).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("migration run not found")
		}
		return nil, utils.NewStorageError(err)
	}
	return &run, nil
}

func (r *GormMigrationRunReader) ListFailedRows(ctx context.Context, runId string) ([]MigrationRowError, error) {
	var rows []MigrationRowError
	if err := r.DB.WithContext(ctx).Where("run_id = ?", runId).Order("id").Find(&rows).Error; err != nil {
		return nil, utils.NewStorageError(err)
	}
	return rows, nil
}

// CountTargetRows counts live target rows whose creation time falls inside window (inclusive).
func (r *GormMigrationRunReader) CountTargetRows(ctx context.Context, entityType string, window TimeWindow) (int64, error) {
	target, ok := LookupEntityTarget(entityType)
	if !ok {
		return 0, utils.NewInvalidStateError("no target table registered for entity type %q", entityType)
	}
	var count int64
	err := r.DB.WithContext(ctx).Table(target.Table).
		Where(clause.Gte{Column: clause.Column{Name: target.CreatedAtColumn}, Value: window.From}).
		Where(clause.Lte{Column: clause.Column{Name: target.CreatedAtColumn}, Value: window.To}).
		Count(&count).Error
	if err != nil {
		return 0, utils.NewStorageError(err)
	}
	return count, nil
}

// TargetExists reports whether a live row carries naturalKey in the entity type's key column.
func (r *GormMigrationRunReader) TargetExists(ctx context.Context, entityType string, naturalKey string) (bool, error) {
	target, ok := LookupEntityTarget(entityType)
	if !ok {
		return false, utils.NewInvalidStateError("no target table registered for entity type %q", entityType)
	}
	var count int64
	err := r.DB.WithContext(ctx).Table(target.Table).
		Where(clause.Eq{Column: clause.Column{Name: target.KeyColumn}, Value: naturalKey}).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, utils.NewStorageError(err)
	}
	return count > 0, nil
}

// GetMigrationRunsByIds is the batch function behind the run dataloader.
func GetMigrationRunsByIds(ctx context.Context, db *gorm.DB, ids []string) ([]*MigrationRun, error) {
	var runs []*MigrationRun
	if len(ids) == 0 {
		return runs, nil
	}
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&runs).Error; err != nil {
		return nil, utils.NewStorageError(err)
	}
	return runs, nil
}
