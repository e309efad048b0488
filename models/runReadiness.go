package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

// RunReadiness is the go-live view of one migration run.
type RunReadiness struct {
	RunId                string             `json:"run_id"`
	EntityType           string             `json:"entity_type"`
	Status               MigrationRunStatus `json:"status"`
	ReconciliationPasses int                `json:"reconciliation_passes"`
	MismatchCount        int                `json:"mismatch_count"`
	LastReconciledAt     *time.Time         `json:"last_reconciled_at"`
	OpenBySeverity       []DimensionCount   `json:"open_by_severity"`
	OpenCritical         int64              `json:"open_critical"`
	Ready                bool               `json:"ready"`
}

// GetRunReadiness re-scores a run from its summary and its still-open discrepancies.
// A run is ready once it was reconciled at least once and has no open critical discrepancy.
func GetRunReadiness(ctx context.Context, db *gorm.DB, runId string) (*RunReadiness, error) {
	run, err := NewMigrationRunReader(db).GetRun(ctx, runId)
	if err != nil {
		return nil, err
	}
	summary, err := GetParallelRunSummary(ctx, db, runId)
	if err != nil {
		return nil, err
	}

	openBySeverity := make([]DimensionCount, 0)
	err = db.WithContext(ctx).Model(&Discrepancy{}).
		Select("severity AS dimension, COUNT(*) AS count").
		Where("run_id = ? AND resolved_at IS NULL", runId).
		Group("severity").
		Scan(&openBySeverity).Error
	if err != nil {
		return nil, utils.NewStorageError(err)
	}
	sortBySeverityRank(openBySeverity)

	readiness := &RunReadiness{
		RunId:          run.ID,
		EntityType:     run.EntityType,
		Status:         run.Status,
		OpenBySeverity: openBySeverity,
	}
	for _, c := range openBySeverity {
		if c.Dimension == string(DiscrepancySeverityCritical) {
			readiness.OpenCritical = c.Count
		}
	}
	if summary != nil {
		readiness.ReconciliationPasses = summary.ReconciliationPasses
		readiness.MismatchCount = summary.MismatchCount
		readiness.LastReconciledAt = summary.LastReconciledAt
	}
	readiness.Ready = run.Status == MigrationRunStatusComplete &&
		readiness.ReconciliationPasses > 0 &&
		readiness.OpenCritical == 0
	return readiness, nil
}
