package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

// ParallelRunSummary holds the latest reconciliation outcome of one migration run.
// Unique: run_id.
type ParallelRunSummary struct {
	ID                   int        `gorm:"primary_key" json:"id"`
	RunId                string     `gorm:"size:64;not null;uniqueIndex" json:"run_id"`
	MismatchCount        int        `gorm:"not null;default:0" json:"mismatch_count"`
	ReconciliationPasses int        `gorm:"not null;default:0" json:"reconciliation_passes"`
	LastReconciledAt     *time.Time `json:"last_reconciled_at"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateParallelRunSummary fetches the run's summary, inserting an empty one when absent.
// A concurrent insert of the same run_id is tolerated by re-reading after the duplicate key error.
func FirstOrCreateParallelRunSummary(tx *gorm.DB, runId string) (*ParallelRunSummary, error) {
	var summary ParallelRunSummary
	err := tx.Where("run_id = ?", runId).First(&summary).Error
	if err == nil {
		return &summary, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewStorageError(err)
	}

	summary = ParallelRunSummary{RunId: runId}
	if err := tx.Create(&summary).Error; err != nil {
		if !isDuplicateKeyErr(err) {
			return nil, utils.NewStorageError(err)
		}
		if err := tx.Where("run_id = ?", runId).First(&summary).Error; err != nil {
			return nil, utils.NewStorageError(err)
		}
	}
	return &summary, nil
}

// RecordReconciliationPass overwrites the mismatch count with this pass's result.
func RecordReconciliationPass(tx *gorm.DB, summaryId int, mismatchCount int, pass int, at time.Time) error {
	err := tx.Model(&ParallelRunSummary{}).
		Where("id = ?", summaryId).
		Updates(map[string]interface{}{
			"mismatch_count":        mismatchCount,
			"reconciliation_passes": pass,
			"last_reconciled_at":    at,
		}).Error
	if err != nil {
		return utils.NewStorageError(err)
	}
	return nil
}

// GetParallelRunSummary returns nil without error when the run was never reconciled.
func GetParallelRunSummary(ctx context.Context, db *gorm.DB, runId string) (*ParallelRunSummary, error) {
	var summary ParallelRunSummary
	err := db.WithContext(ctx).Where("run_id = ?", runId).First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, utils.NewStorageError(err)
	}
	return &summary, nil
}
