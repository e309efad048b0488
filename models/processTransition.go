package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

// ProcessTransition is an append-only audit row for a state change of some process entity.
type ProcessTransition struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ProcessType   string    `gorm:"size:50;not null;index:idx_process_entity" json:"process_type"`
	EntityId      string    `gorm:"size:255;not null;index:idx_process_entity" json:"entity_id"`
	FromState     string    `gorm:"size:50;not null" json:"from_state"`
	ToState       string    `gorm:"size:50;not null" json:"to_state"`
	ActorId       string    `gorm:"size:255;not null" json:"actor_id"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateProcessTransition(ctx context.Context, db *gorm.DB, transition *ProcessTransition) error {
	if err := db.WithContext(ctx).Create(transition).Error; err != nil {
		return utils.NewStorageError(err)
	}
	return nil
}

func ListProcessTransitions(ctx context.Context, db *gorm.DB, processType string, entityId string) ([]ProcessTransition, error) {
	var transitions []ProcessTransition
	err := db.WithContext(ctx).
		Where("process_type = ? AND entity_id = ?", processType, entityId).
		Order("id").
		Find(&transitions).Error
	if err != nil {
		return nil, utils.NewStorageError(err)
	}
	return transitions, nil
}
