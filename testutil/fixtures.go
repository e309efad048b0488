package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/workflow"
	"gorm.io/gorm"
)

func SeedDiscrepancy(tb testing.TB, db *gorm.DB, input models.NewDiscrepancy) *models.Discrepancy {
	tb.Helper()
	id, err := models.InsertDiscrepancy(db, input)
	if err != nil {
		tb.Fatalf("seed discrepancy: %v", err)
	}
	d, err := models.GetDiscrepancy(context.Background(), db, id)
	if err != nil {
		tb.Fatalf("reload discrepancy: %v", err)
	}
	return d
}

// SeedOpenDiscrepancies inserts n open discrepancies sharing the given dimensions.
func SeedOpenDiscrepancies(tb testing.TB, db *gorm.DB, n int, entityType string, severity models.DiscrepancySeverity, discrepancyType models.DiscrepancyType) []*models.Discrepancy {
	tb.Helper()
	result := make([]*models.Discrepancy, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, SeedDiscrepancy(tb, db, models.NewDiscrepancy{
			EntityType:      entityType,
			EntityId:        fmt.Sprintf("%s-%d", entityType, i+1),
			DiscrepancyType: discrepancyType,
			Severity:        severity,
		}))
	}
	return result
}

// SeedDiscrepancyWithID inserts an open discrepancy under a caller-chosen id such as "disc-1".
func SeedDiscrepancyWithID(tb testing.TB, db *gorm.DB, id string, entityType string) *models.Discrepancy {
	tb.Helper()
	d := &models.Discrepancy{
		ID:              id,
		EntityType:      entityType,
		EntityId:        id + "-entity",
		DiscrepancyType: models.DiscrepancyTypeFieldMismatch,
		Severity:        models.DiscrepancySeverityWarning,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.Create(d).Error; err != nil {
		tb.Fatalf("seed discrepancy %s: %v", id, err)
	}
	return d
}

func SeedMigrationRun(tb testing.TB, db *gorm.DB, run models.MigrationRun) *models.MigrationRun {
	tb.Helper()
	if err := db.Create(&run).Error; err != nil {
		tb.Fatalf("seed migration run: %v", err)
	}
	return &run
}

func SeedRowError(tb testing.TB, db *gorm.DB, runId string, rawValue string, errorType string) *models.MigrationRowError {
	tb.Helper()
	row := &models.MigrationRowError{RunId: runId, RawValue: rawValue, ErrorType: errorType}
	if err := db.Create(row).Error; err != nil {
		tb.Fatalf("seed row error: %v", err)
	}
	return row
}

// SeedCars inserts n cars numbered from start, all created at createdAt.
func SeedCars(tb testing.TB, db *gorm.DB, mark string, start int, n int, createdAt time.Time) {
	tb.Helper()
	cars := make([]Car, 0, n)
	for i := 0; i < n; i++ {
		cars = append(cars, Car{
			CarMark:   mark,
			CarNumber: fmt.Sprintf("%s_%03d", mark, start+i),
			CreatedAt: createdAt,
		})
	}
	if n == 0 {
		return
	}
	if err := db.CreateInBatches(cars, 100).Error; err != nil {
		tb.Fatalf("seed cars: %v", err)
	}
}

func SeedCustomer(tb testing.TB, db *gorm.DB, c Customer) *Customer {
	tb.Helper()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := db.Create(&c).Error; err != nil {
		tb.Fatalf("seed customer: %v", err)
	}
	return &c
}

// RecordingTransitionLogger keeps every transition in memory. Err, when set, is returned
// from every Log call after recording.
type RecordingTransitionLogger struct {
	mu      sync.Mutex
	Records []workflow.TransitionRecord
	Err     error
}

func (l *RecordingTransitionLogger) Log(_ context.Context, record workflow.TransitionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Records = append(l.Records, record)
	return l.Err
}

func (l *RecordingTransitionLogger) Snapshot() []workflow.TransitionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]workflow.TransitionRecord, len(l.Records))
	copy(out, l.Records)
	return out
}
