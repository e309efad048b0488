package workflow

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// MigrationRunReader is the view of the bulk import pipeline a reconciliation pass needs.
type MigrationRunReader interface {
	GetRun(ctx context.Context, runId string) (*models.MigrationRun, error)
	ListFailedRows(ctx context.Context, runId string) ([]models.MigrationRowError, error)
	CountTargetRows(ctx context.Context, entityType string, window models.TimeWindow) (int64, error)
	TargetExists(ctx context.Context, entityType string, naturalKey string) (bool, error)
}

type ReconciliationResult struct {
	RunId         string `json:"run_id"`
	NewIssues     int    `json:"new_issues"`
	DetectionPass int    `json:"detection_pass"`
}

type ReconciliationRunner struct {
	DB          *gorm.DB
	Runs        MigrationRunReader
	Logger      *logrus.Logger
	Policy      SeverityPolicy
	CutoffGrace time.Duration
	Tracer      trace.Tracer
	Now         func() time.Time
}

func NewReconciliationRunner(db *gorm.DB, logger *logrus.Logger) *ReconciliationRunner {
	return &ReconciliationRunner{
		DB:          db,
		Runs:        models.NewMigrationRunReader(db),
		Logger:      logger,
		Policy:      DefaultSeverityPolicy(),
		CutoffGrace: time.Duration(config.CutoffGraceSeconds()) * time.Second,
		Tracer:      otel.Tracer("fleet_backend/workflow"),
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

type missingRow struct {
	rowErrorId int
	rawValue   string
	errorType  string
}

// RunReconciliation runs one pass over a completed migration run. Every pass inserts its own
// rows tagged with the pass number; nothing is de-duplicated against earlier passes.
func (r *ReconciliationRunner) RunReconciliation(ctx context.Context, runId string) (*ReconciliationResult, error) {
	tracer := r.Tracer
	if tracer == nil {
		tracer = otel.Tracer("fleet_backend/workflow")
	}
	ctx, span := tracer.Start(ctx, "RunReconciliation", trace.WithAttributes(attribute.String("migration_run.id", runId)))
	defer span.End()

	run, err := r.Runs.GetRun(ctx, runId)
	if err != nil {
		return nil, r.fail(span, "fetching migration run", runId, err)
	}
	if run.Status != models.MigrationRunStatusComplete {
		return nil, utils.NewInvalidStateError("migration run is not complete")
	}
	target, ok := models.LookupEntityTarget(run.EntityType)
	if !ok {
		return nil, utils.NewInvalidStateError("no target table registered for entity type %q (registered: %s)",
			run.EntityType, strings.Join(models.RegisteredEntityTypes(), ", "))
	}
	span.SetAttributes(attribute.String("migration_run.entity_type", run.EntityType))

	missing, err := r.findMissingRows(ctx, run)
	if err != nil {
		return nil, r.fail(span, "checking failed rows", runId, err)
	}

	now := r.now()
	cutoff := now
	if run.CompletedAt != nil {
		cutoff = run.CompletedAt.Add(r.CutoffGrace)
	}
	window := models.TimeWindow{From: run.StartedAt, To: cutoff}
	targetCount, err := r.Runs.CountTargetRows(ctx, run.EntityType, window)
	if err != nil {
		return nil, r.fail(span, "counting target rows", runId, err)
	}

	result := &ReconciliationResult{RunId: runId}
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		summary, err := models.FirstOrCreateParallelRunSummary(tx, runId)
		if err != nil {
			return err
		}
		pass := summary.ReconciliationPasses + 1
		inserted := 0

		for _, row := range missing {
			_, err := models.InsertDiscrepancy(tx, models.NewDiscrepancy{
				RunId:           &run.ID,
				EntityType:      run.EntityType,
				EntityId:        row.rawValue,
				DiscrepancyType: models.DiscrepancyTypeMissingInTarget,
				Severity:        r.Policy.MissingInTarget(run.EntityType),
				Details: map[string]interface{}{
					"row_error_id": row.rowErrorId,
					"error_type":   row.errorType,
					"lookup":       target.Table + "." + target.KeyColumn,
				},
				DetectionPass: pass,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
			inserted++
		}

		if run.ImportedRows != targetCount {
			_, err := models.InsertDiscrepancy(tx, models.NewDiscrepancy{
				RunId:           &run.ID,
				EntityType:      run.EntityType,
				EntityId:        run.ID,
				DiscrepancyType: models.DiscrepancyTypeCountMismatch,
				Severity:        r.Policy.CountMismatch(run.ImportedRows, targetCount),
				FieldName:       utils.NilIfEmpty("row_count"),
				SourceValue:     utils.NilIfEmpty(strconv.FormatInt(run.ImportedRows, 10)),
				TargetValue:     utils.NilIfEmpty(strconv.FormatInt(targetCount, 10)),
				Details: map[string]interface{}{
					"source_count":   run.ImportedRows,
					"target_count":   targetCount,
					"difference":     run.ImportedRows - targetCount,
					"difference_pct": CountGapPercent(run.ImportedRows, targetCount).String(),
					"window_start":   window.From.UTC().Format(time.RFC3339),
					"window_end":     window.To.UTC().Format(time.RFC3339),
				},
				DetectionPass: pass,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
			inserted++
		}

		if err := models.RecordReconciliationPass(tx, summary.ID, inserted, pass, now); err != nil {
			return err
		}
		result.NewIssues = inserted
		result.DetectionPass = pass
		return nil
	})
	if err != nil {
		return nil, r.fail(span, "writing reconciliation pass", runId, err)
	}

	span.SetAttributes(attribute.Int("reconciliation.new_issues", result.NewIssues))
	r.Logger.WithFields(logrus.Fields{
		"run_id":         runId,
		"entity_type":    run.EntityType,
		"detection_pass": result.DetectionPass,
		"new_issues":     result.NewIssues,
		"source_count":   run.ImportedRows,
		"target_count":   targetCount,
	}).Info("reconciliation pass complete")
	return result, nil
}

// findMissingRows returns failed import rows whose raw value still has no target row.
// Blank raw values cannot be looked up and are skipped. Every failed row yields its own entry;
// the target lookup is cached per raw value.
func (r *ReconciliationRunner) findMissingRows(ctx context.Context, run *models.MigrationRun) ([]missingRow, error) {
	rows, err := r.Runs.ListFailedRows(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(rows))
	var missing []missingRow
	for _, row := range rows {
		raw := strings.TrimSpace(row.RawValue)
		if raw == "" {
			r.Logger.WithFields(logrus.Fields{
				"run_id":       run.ID,
				"row_error_id": row.ID,
			}).Warn("skipping failed row without raw value")
			continue
		}
		exists, checked := present[raw]
		if !checked {
			exists, err = r.Runs.TargetExists(ctx, run.EntityType, raw)
			if err != nil {
				return nil, err
			}
			present[raw] = exists
		}
		if !exists {
			missing = append(missing, missingRow{rowErrorId: row.ID, rawValue: raw, errorType: row.ErrorType})
		}
	}
	return missing, nil
}

func (r *ReconciliationRunner) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

func (r *ReconciliationRunner) fail(span trace.Span, context string, runId string, err error) error {
	if utils.ErrorKindOf(err) == utils.ErrorKindStorage {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(r.Logger, "reconciliationRunner.go", "RunReconciliation", context, runId, err)
	}
	return err
}
