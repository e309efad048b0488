package workflow

import (
	"context"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/matching"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type DuplicateDetector struct {
	DB        *gorm.DB
	Registry  *matching.Registry
	Logger    *logrus.Logger
	ScanLimit int
	Tracer    trace.Tracer
}

func NewDuplicateDetector(db *gorm.DB, logger *logrus.Logger) *DuplicateDetector {
	return &DuplicateDetector{
		DB:        db,
		Registry:  matching.DefaultRegistry(config.PhoneDefaultRegion()),
		Logger:    logger,
		ScanLimit: config.DuplicateScanLimit(),
		Tracer:    otel.Tracer("fleet_backend/workflow"),
	}
}

type PromoteCandidateInput struct {
	EntityType string                     `json:"entity_type" validate:"required"`
	EntityAId  string                     `json:"entity_a_id" validate:"required"`
	EntityBId  string                     `json:"entity_b_id" validate:"required,nefield=EntityAId"`
	Severity   models.DiscrepancySeverity `json:"severity" validate:"omitempty,oneof=critical warning info"`
	RunId      *string                    `json:"run_id"`
}

func recordSource(m matching.Matcher) models.EntityRecordSource {
	src := m.Source()
	return models.EntityRecordSource{Table: src.Table, IDColumn: src.IDColumn, Columns: src.Columns}
}

func toMatchingRecords(records []models.EntityRecord) []matching.Record {
	result := make([]matching.Record, len(records))
	for i, rec := range records {
		result[i] = matching.Record{ID: rec.ID, Fields: rec.Fields}
	}
	return result
}

func (d *DuplicateDetector) tracer() trace.Tracer {
	if d.Tracer == nil {
		return otel.Tracer("fleet_backend/workflow")
	}
	return d.Tracer
}

// DetectDuplicates scores live rows of entityType. It never writes; an entity type without a
// matcher, or with fewer than two rows, yields an empty list.
func (d *DuplicateDetector) DetectDuplicates(ctx context.Context, entityType string) ([]matching.DuplicateCandidate, error) {
	ctx, span := d.tracer().Start(ctx, "DetectDuplicates", trace.WithAttributes(attribute.String("entity_type", entityType)))
	defer span.End()

	m, ok := d.Registry.Lookup(entityType)
	if !ok {
		return []matching.DuplicateCandidate{}, nil
	}
	records, err := models.LoadEntityRecords(ctx, d.DB, recordSource(m), d.ScanLimit)
	if err != nil {
		span.RecordError(err)
		config.LogError(d.Logger, "duplicateDetection.go", "DetectDuplicates", "loading records", entityType, err)
		return nil, err
	}
	if d.ScanLimit > 0 && len(records) >= d.ScanLimit {
		d.Logger.WithFields(logrus.Fields{
			"entity_type": entityType,
			"scan_limit":  d.ScanLimit,
		}).Warn("duplicate scan truncated at limit")
	}

	candidates := matching.DetectCandidates(m, toMatchingRecords(records))
	span.SetAttributes(attribute.Int("duplicates.records", len(records)), attribute.Int("duplicates.candidates", len(candidates)))
	return candidates, nil
}

// PromoteDuplicateCandidate re-scores the pair against live rows and records it as a duplicate
// discrepancy. The stored confidence is the fresh score, not one supplied by the caller.
func (d *DuplicateDetector) PromoteDuplicateCandidate(ctx context.Context, input PromoteCandidateInput) (*models.Discrepancy, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	m, ok := d.Registry.Lookup(input.EntityType)
	if !ok {
		return nil, utils.NewInvalidArgumentError("no duplicate matcher for entity type %q", input.EntityType)
	}

	records, err := models.LoadEntityRecordsByIds(ctx, d.DB, recordSource(m), []string{input.EntityAId, input.EntityBId})
	if err != nil {
		return nil, err
	}
	byId := make(map[string]matching.Record, len(records))
	for _, rec := range toMatchingRecords(records) {
		byId[rec.ID] = rec
	}
	a, okA := byId[input.EntityAId]
	b, okB := byId[input.EntityBId]
	if !okA || !okB {
		return nil, utils.NewNotFoundError("%s record not found", input.EntityType)
	}

	confidence, fields := m.Score(m.Normalize(a), m.Normalize(b))
	if confidence <= 0 || confidence < m.MinConfidence() {
		return nil, utils.NewInvalidStateError("%s %s and %s are not duplicate candidates", input.EntityType, input.EntityAId, input.EntityBId)
	}

	aId, bId := input.EntityAId, input.EntityBId
	if bId < aId {
		aId, bId = bId, aId
	}
	severity := input.Severity
	if severity == "" {
		severity = models.DiscrepancySeverityWarning
	}
	id, err := models.InsertDiscrepancy(d.DB.WithContext(ctx), models.NewDiscrepancy{
		RunId:           input.RunId,
		EntityType:      input.EntityType,
		EntityId:        aId,
		DiscrepancyType: models.DiscrepancyTypeDuplicate,
		Severity:        severity,
		Details: map[string]interface{}{
			"entity_a_id":      aId,
			"entity_b_id":      bId,
			"match_confidence": confidence,
			"matched_fields":   fields,
		},
	})
	if err != nil {
		config.LogError(d.Logger, "duplicateDetection.go", "PromoteDuplicateCandidate", "inserting duplicate discrepancy", input, err)
		return nil, err
	}
	return models.GetDiscrepancy(ctx, d.DB, id)
}
