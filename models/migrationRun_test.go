package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/testutil"
	"github.com/mmdatafocus/fleet_backend/utils"
)

func TestMigrationRunReader(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	completed := started.Add(time.Hour)
	testutil.SeedMigrationRun(t, db, models.MigrationRun{
		ID: "mig-run-1", EntityType: "cars", Status: models.MigrationRunStatusComplete,
		StartedAt: started, CompletedAt: &completed, ImportedRows: 3,
	})
	testutil.SeedRowError(t, db, "mig-run-1", "UTLX_BAD_001", "invalid_mark")
	testutil.SeedRowError(t, db, "mig-run-2", "OTHER", "invalid_mark")
	testutil.SeedCars(t, db, "UTLX", 1, 2, started.Add(10*time.Minute))
	testutil.SeedCars(t, db, "GATX", 1, 1, started.Add(-time.Hour))

	reader := models.NewMigrationRunReader(db)
	run, err := reader.GetRun(ctx, "mig-run-1")
	if err != nil || run.ImportedRows != 3 {
		t.Fatalf("get run: %+v %v", run, err)
	}
	if _, err := reader.GetRun(ctx, "nope"); !utils.IsErrorKind(err, utils.ErrorKindNotFound) || err.Error() != "migration run not found" {
		t.Fatalf("expected NotFound, got %v", err)
	}

	rows, err := reader.ListFailedRows(ctx, "mig-run-1")
	if err != nil || len(rows) != 1 || rows[0].RawValue != "UTLX_BAD_001" {
		t.Fatalf("failed rows: %+v %v", rows, err)
	}

	count, err := reader.CountTargetRows(ctx, "cars", models.TimeWindow{From: started, To: completed})
	if err != nil || count != 2 {
		t.Fatalf("expected 2 cars in window, got %d (%v)", count, err)
	}

	exists, err := reader.TargetExists(ctx, "cars", "UTLX_001")
	if err != nil || !exists {
		t.Fatalf("expected UTLX_001 to exist: %v", err)
	}
	exists, err = reader.TargetExists(ctx, "cars", "UTLX_BAD_001")
	if err != nil || exists {
		t.Fatalf("expected UTLX_BAD_001 to be absent: %v", err)
	}
	if _, err := reader.TargetExists(ctx, "allocations", "x"); !utils.IsErrorKind(err, utils.ErrorKindInvalidState) {
		t.Fatalf("expected InvalidState for unregistered type, got %v", err)
	}
}

func TestRegisterEntityTarget(t *testing.T) {
	if err := models.RegisterEntityTarget("tank_cars", models.EntityTarget{Table: "cars; drop table cars", KeyColumn: "car_number"}); err == nil {
		t.Fatalf("expected invalid identifier to be rejected")
	}
	if err := models.RegisterEntityTarget("tank_cars", models.EntityTarget{Table: "cars", KeyColumn: "car_number"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	target, ok := models.LookupEntityTarget("tank_cars")
	if !ok || target.CreatedAtColumn != "created_at" {
		t.Fatalf("unexpected target %+v", target)
	}
}

func TestGetRunReadiness(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	completed := started.Add(time.Hour)
	testutil.SeedMigrationRun(t, db, models.MigrationRun{
		ID: "mig-run-9", EntityType: "customers", Status: models.MigrationRunStatusComplete,
		StartedAt: started, CompletedAt: &completed,
	})

	readiness, err := models.GetRunReadiness(ctx, db, "mig-run-9")
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if readiness.Ready || readiness.ReconciliationPasses != 0 {
		t.Fatalf("unreconciled run must not be ready: %+v", readiness)
	}

	summary, err := models.FirstOrCreateParallelRunSummary(db, "mig-run-9")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := models.RecordReconciliationPass(db, summary.ID, 1, 1, completed); err != nil {
		t.Fatalf("record pass: %v", err)
	}
	runId := "mig-run-9"
	critical := testutil.SeedDiscrepancy(t, db, models.NewDiscrepancy{
		RunId: &runId, EntityType: "customers", EntityId: "C-1",
		DiscrepancyType: models.DiscrepancyTypeMissingInTarget, Severity: models.DiscrepancySeverityCritical,
	})

	readiness, err = models.GetRunReadiness(ctx, db, "mig-run-9")
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if readiness.Ready || readiness.OpenCritical != 1 || readiness.MismatchCount != 1 {
		t.Fatalf("run with open critical must not be ready: %+v", readiness)
	}

	if err := models.MarkDiscrepancyResolved(db, critical.ID, models.ResolutionTypeAcceptTarget, nil, "actor", completed); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	readiness, err = models.GetRunReadiness(ctx, db, "mig-run-9")
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if !readiness.Ready || readiness.OpenCritical != 0 {
		t.Fatalf("expected ready run: %+v", readiness)
	}

	if _, err := models.GetRunReadiness(ctx, db, "mig-run-404"); !utils.IsErrorKind(err, utils.ErrorKindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFirstOrCreateParallelRunSummaryIsStable(t *testing.T) {
	db := testutil.DB(t)
	first, err := models.FirstOrCreateParallelRunSummary(db, "mig-run-3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := models.FirstOrCreateParallelRunSummary(db, "mig-run-3")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one summary row, got ids %d and %d", first.ID, second.ID)
	}
}
