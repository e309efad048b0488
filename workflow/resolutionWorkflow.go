package workflow

import (
	"context"
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

type ResolutionInput struct {
	Action models.ResolutionType `json:"action" validate:"required,oneof=accept_source accept_target ignore"`
	Notes  *string               `json:"notes"`
}

type BulkResolutionInput struct {
	Ids []string `json:"ids"`
	ResolutionInput
}

type BulkResolutionResult struct {
	ResolvedCount int      `json:"resolved_count"`
	ResolvedIds   []string `json:"resolved_ids"`
}

type DiscrepancyResolver struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Audit  TransitionLogger
	Tracer trace.Tracer
	Now    func() time.Time
}

func NewDiscrepancyResolver(db *gorm.DB, logger *logrus.Logger, audit TransitionLogger) *DiscrepancyResolver {
	return &DiscrepancyResolver{
		DB:     db,
		Logger: logger,
		Audit:  audit,
		Tracer: otel.Tracer("fleet_backend/workflow"),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *DiscrepancyResolver) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

func (r *DiscrepancyResolver) tracer() trace.Tracer {
	if r.Tracer == nil {
		return otel.Tracer("fleet_backend/workflow")
	}
	return r.Tracer
}

func validateResolution(input ResolutionInput, actorId string) error {
	if strings.TrimSpace(actorId) == "" {
		return utils.NewInvalidArgumentError("actor id is required")
	}
	return utils.ValidateStruct(input)
}

// ResolveDiscrepancy resolves one open discrepancy and emits its audit transition.
// The audit emission cannot fail the call.
func (r *DiscrepancyResolver) ResolveDiscrepancy(ctx context.Context, id string, input ResolutionInput, actorId string) (*models.Discrepancy, error) {
	ctx, span := r.tracer().Start(ctx, "ResolveDiscrepancy", trace.WithAttributes(
		attribute.String("discrepancy.id", id),
		attribute.String("resolution.action", string(input.Action)),
	))
	defer span.End()

	if err := validateResolution(input, actorId); err != nil {
		return nil, err
	}
	db := r.DB.WithContext(ctx)

	d, err := models.GetDiscrepancy(ctx, db, id)
	if err != nil {
		return nil, r.fail(span, "ResolveDiscrepancy", "fetching discrepancy", id, err)
	}
	if d.IsResolved() {
		return nil, utils.NewAlreadyResolvedError("discrepancy %s already resolved", id)
	}

	at := r.now()
	if err := models.MarkDiscrepancyResolved(db, id, input.Action, input.Notes, actorId, at); err != nil {
		return nil, r.fail(span, "ResolveDiscrepancy", "marking resolved", id, err)
	}

	resolved, err := models.GetDiscrepancy(ctx, db, id)
	if err != nil {
		return nil, r.fail(span, "ResolveDiscrepancy", "re-reading resolved discrepancy", id, err)
	}
	r.emit(ctx, span, resolutionTransition(id, input.Action, actorId))
	return resolved, nil
}

// BulkResolveDiscrepancies resolves every id in one transaction or none of them.
// Audit transitions are emitted only after the commit, in input order.
func (r *DiscrepancyResolver) BulkResolveDiscrepancies(ctx context.Context, ids []string, input ResolutionInput, actorId string) (*BulkResolutionResult, error) {
	if len(ids) == 0 {
		return nil, utils.NewInvalidArgumentError("No discrepancy IDs provided")
	}
	ctx, span := r.tracer().Start(ctx, "BulkResolveDiscrepancies", trace.WithAttributes(
		attribute.Int("discrepancy.count", len(ids)),
		attribute.String("resolution.action", string(input.Action)),
	))
	defer span.End()

	if err := validateResolution(input, actorId); err != nil {
		return nil, err
	}
	// A repeated id fails its second occurrence as AlreadyResolved inside the transaction.
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, utils.NewInvalidArgumentError("discrepancy id must not be blank")
		}
	}

	at := r.now()
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			d, err := models.GetDiscrepancy(ctx, tx, id)
			if err != nil {
				return err
			}
			if d.IsResolved() {
				return utils.NewAlreadyResolvedError("discrepancy %s already resolved", id)
			}
			if err := models.MarkDiscrepancyResolved(tx, id, input.Action, input.Notes, actorId, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, r.fail(span, "BulkResolveDiscrepancies", "resolving batch", ids, err)
	}

	for _, id := range ids {
		r.emit(ctx, span, resolutionTransition(id, input.Action, actorId))
	}
	resolvedIds := make([]string, len(ids))
	copy(resolvedIds, ids)
	return &BulkResolutionResult{ResolvedCount: len(resolvedIds), ResolvedIds: resolvedIds}, nil
}

func (r *DiscrepancyResolver) emit(ctx context.Context, span trace.Span, record TransitionRecord) {
	if r.Audit == nil {
		return
	}
	if err := r.Audit.Log(ctx, record); err != nil {
		span.RecordError(err, trace.WithAttributes(attribute.String("audit.entity_id", record.EntityId)))
		config.LogError(r.Logger, "resolutionWorkflow.go", "emit", "audit transition not recorded", record, err)
	}
}

// fail records storage failures on the span; caller-facing kinds pass through untouched.
func (r *DiscrepancyResolver) fail(span trace.Span, funcName string, context string, data any, err error) error {
	if utils.ErrorKindOf(err) == utils.ErrorKindStorage {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(r.Logger, "resolutionWorkflow.go", funcName, context, data, err)
	}
	return err
}
