package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

const ProcessTypeDataReconciliation = "data_reconciliation"

type TransitionRecord struct {
	ProcessType string
	EntityId    string
	FromState   string
	ToState     string
	ActorId     string
}

// TransitionLogger accepts audit transitions. Callers treat failures as fire-and-forget.
type TransitionLogger interface {
	Log(ctx context.Context, record TransitionRecord) error
}

// DBTransitionLogger appends process_transitions rows.
type DBTransitionLogger struct {
	DB *gorm.DB
}

func (l *DBTransitionLogger) Log(ctx context.Context, record TransitionRecord) error {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	return models.CreateProcessTransition(ctx, l.DB, &models.ProcessTransition{
		ProcessType:   record.ProcessType,
		EntityId:      record.EntityId,
		FromState:     record.FromState,
		ToState:       record.ToState,
		ActorId:       record.ActorId,
		CorrelationId: cid,
	})
}

// PubSubTransitionLogger publishes transitions to the audit topic.
type PubSubTransitionLogger struct {
	Timeout time.Duration
}

func (l *PubSubTransitionLogger) Log(ctx context.Context, record TransitionRecord) error {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	_, err := config.PublishTransition(ctx, config.TransitionMessage{
		ProcessType:   record.ProcessType,
		EntityId:      record.EntityId,
		FromState:     record.FromState,
		ToState:       record.ToState,
		ActorId:       record.ActorId,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: cid,
	})
	return err
}

// MultiTransitionLogger fans out to every logger and joins their errors.
type MultiTransitionLogger []TransitionLogger

func (m MultiTransitionLogger) Log(ctx context.Context, record TransitionRecord) error {
	var errs []error
	for _, l := range m {
		if err := l.Log(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewTransitionLogger builds the sink chosen by AUDIT_SINK.
func NewTransitionLogger(db *gorm.DB) TransitionLogger {
	switch config.AuditSink() {
	case config.AuditSinkPubSub:
		return &PubSubTransitionLogger{}
	case config.AuditSinkBoth:
		return MultiTransitionLogger{&DBTransitionLogger{DB: db}, &PubSubTransitionLogger{}}
	default:
		return &DBTransitionLogger{DB: db}
	}
}

func resolutionTransition(id string, action models.ResolutionType, actorId string) TransitionRecord {
	return TransitionRecord{
		ProcessType: ProcessTypeDataReconciliation,
		EntityId:    id,
		FromState:   string(models.DiscrepancyStatusOpen),
		ToState:     string(models.DiscrepancyStatusResolved) + ":" + string(action),
		ActorId:     actorId,
	}
}
