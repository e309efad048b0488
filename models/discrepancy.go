package models

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DiscrepancyType string

const (
	DiscrepancyTypeFieldMismatch   DiscrepancyType = "field_mismatch"
	DiscrepancyTypeMissingInTarget DiscrepancyType = "missing_in_target"
	DiscrepancyTypeMissingInSource DiscrepancyType = "missing_in_source"
	DiscrepancyTypeDuplicate       DiscrepancyType = "duplicate"
	DiscrepancyTypeCountMismatch   DiscrepancyType = "count_mismatch"
)

func (t DiscrepancyType) IsValid() bool {
	switch t {
	case DiscrepancyTypeFieldMismatch, DiscrepancyTypeMissingInTarget, DiscrepancyTypeMissingInSource,
		DiscrepancyTypeDuplicate, DiscrepancyTypeCountMismatch:
		return true
	}
	return false
}

type DiscrepancySeverity string

const (
	DiscrepancySeverityCritical DiscrepancySeverity = "critical"
	DiscrepancySeverityWarning  DiscrepancySeverity = "warning"
	DiscrepancySeverityInfo     DiscrepancySeverity = "info"
)

func (s DiscrepancySeverity) IsValid() bool {
	return s.Rank() > 0
}

// Rank orders severities most urgent first (critical=1).
func (s DiscrepancySeverity) Rank() int {
	switch s {
	case DiscrepancySeverityCritical:
		return 1
	case DiscrepancySeverityWarning:
		return 2
	case DiscrepancySeverityInfo:
		return 3
	}
	return 0
}

type ResolutionType string

const (
	ResolutionTypeAcceptSource ResolutionType = "accept_source"
	ResolutionTypeAcceptTarget ResolutionType = "accept_target"
	ResolutionTypeIgnore       ResolutionType = "ignore"
)

func (r ResolutionType) IsValid() bool {
	switch r {
	case ResolutionTypeAcceptSource, ResolutionTypeAcceptTarget, ResolutionTypeIgnore:
		return true
	}
	return false
}

// Discrepancy is one recorded difference between source and target data.
// The resolution columns are written together by MarkDiscrepancyResolved and never cleared.
type Discrepancy struct {
	ID              string              `gorm:"primaryKey;size:36" json:"id"`
	RunId           *string             `gorm:"size:64;index" json:"run_id"`
	EntityType      string              `gorm:"size:50;not null;index" json:"entity_type"`
	EntityId        string              `gorm:"size:255;not null" json:"entity_id"`
	DiscrepancyType DiscrepancyType     `gorm:"size:30;not null;index" json:"discrepancy_type"`
	Severity        DiscrepancySeverity `gorm:"size:10;not null;index" json:"severity"`
	FieldName       *string             `gorm:"size:100" json:"field_name"`
	SourceValue     *string             `gorm:"type:text" json:"source_value"`
	TargetValue     *string             `gorm:"type:text" json:"target_value"`
	Details         datatypes.JSON      `json:"details"`
	DetectionPass   int                 `gorm:"not null;default:0" json:"detection_pass"`
	ResolvedAt      *time.Time          `gorm:"index" json:"resolved_at"`
	ResolvedBy      *string             `gorm:"size:255" json:"resolved_by"`
	ResolutionType  *ResolutionType     `gorm:"size:20" json:"resolution_type"`
	Notes           *string             `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time           `gorm:"not null;index" json:"created_at"`
}

func (d *Discrepancy) IsResolved() bool {
	return d.ResolvedAt != nil
}

func (d *Discrepancy) Status() DiscrepancyStatus {
	if d.IsResolved() {
		return DiscrepancyStatusResolved
	}
	return DiscrepancyStatusOpen
}

type NewDiscrepancy struct {
	RunId           *string
	EntityType      string
	EntityId        string
	DiscrepancyType DiscrepancyType
	Severity        DiscrepancySeverity
	FieldName       *string
	SourceValue     *string
	TargetValue     *string
	// Details is marshalled to JSON as-is; nil stores SQL NULL.
	Details       any
	DetectionPass int
	CreatedAt     time.Time
}

func (input *NewDiscrepancy) validate() error {
	if strings.TrimSpace(input.EntityType) == "" {
		return utils.NewInvalidArgumentError("entity_type is required")
	}
	if strings.TrimSpace(input.EntityId) == "" {
		return utils.NewInvalidArgumentError("entity_id is required")
	}
	if !input.DiscrepancyType.IsValid() {
		return utils.NewInvalidArgumentError("invalid discrepancy_type %q", input.DiscrepancyType)
	}
	if !input.Severity.IsValid() {
		return utils.NewInvalidArgumentError("invalid severity %q", input.Severity)
	}
	return nil
}

// InsertDiscrepancy stores a new open discrepancy and returns its id.
func InsertDiscrepancy(db *gorm.DB, input NewDiscrepancy) (string, error) {
	if err := input.validate(); err != nil {
		return "", err
	}
	var details datatypes.JSON
	if input.Details != nil {
		b, err := json.Marshal(input.Details)
		if err != nil {
			return "", utils.NewInvalidArgumentError("details are not valid JSON: %v", err)
		}
		details = datatypes.JSON(b)
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	d := Discrepancy{
		ID:              uuid.NewString(),
		RunId:           input.RunId,
		EntityType:      input.EntityType,
		EntityId:        input.EntityId,
		DiscrepancyType: input.DiscrepancyType,
		Severity:        input.Severity,
		FieldName:       input.FieldName,
		SourceValue:     input.SourceValue,
		TargetValue:     input.TargetValue,
		Details:         details,
		DetectionPass:   input.DetectionPass,
		CreatedAt:       createdAt,
	}
	if err := db.Create(&d).Error; err != nil {
		return "", utils.NewStorageError(err)
	}
	return d.ID, nil
}

func GetDiscrepancy(ctx context.Context, db *gorm.DB, id string) (*Discrepancy, error) {
	var d Discrepancy
	err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("discrepancy %s not found", id)
		}
		return nil, utils.NewStorageError(err)
	}
	return &d, nil
}

// MarkDiscrepancyResolved is the only mutation of a discrepancy. It is one conditional
// UPDATE guarded by resolved_at IS NULL, so of two racing callers exactly one wins.
func MarkDiscrepancyResolved(db *gorm.DB, id string, resolutionType ResolutionType, notes *string, actorId string, at time.Time) error {
	if !resolutionType.IsValid() {
		return utils.NewInvalidArgumentError("invalid resolution type %q", resolutionType)
	}
	res := db.Model(&Discrepancy{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_at":     at,
			"resolved_by":     actorId,
			"resolution_type": resolutionType,
			"notes":           notes,
		})
	if res.Error != nil {
		return utils.NewStorageError(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Model(&Discrepancy{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return utils.NewStorageError(err)
	}
	if count == 0 {
		return utils.NewNotFoundError("discrepancy %s not found", id)
	}
	return utils.NewAlreadyResolvedError("discrepancy %s already resolved", id)
}
