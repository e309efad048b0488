package models

import (
	"context"
	"strings"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

type DiscrepancyStatus string

const (
	DiscrepancyStatusOpen     DiscrepancyStatus = "open"
	DiscrepancyStatusResolved DiscrepancyStatus = "resolved"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
)

type DiscrepancyFilter struct {
	EntityType string              `form:"entity_type" json:"entity_type"`
	Severity   DiscrepancySeverity `form:"severity" json:"severity"`
	// Status defaults to open.
	Status DiscrepancyStatus `form:"status" json:"status"`
}

func (f *DiscrepancyFilter) normalize() error {
	f.EntityType = strings.TrimSpace(f.EntityType)
	f.Severity = DiscrepancySeverity(strings.ToLower(strings.TrimSpace(string(f.Severity))))
	f.Status = DiscrepancyStatus(strings.ToLower(strings.TrimSpace(string(f.Status))))
	if f.Severity != "" && !f.Severity.IsValid() {
		return utils.NewInvalidArgumentError("invalid severity %q", f.Severity)
	}
	switch f.Status {
	case "":
		f.Status = DiscrepancyStatusOpen
	case DiscrepancyStatusOpen, DiscrepancyStatusResolved:
	default:
		return utils.NewInvalidArgumentError("invalid status %q", f.Status)
	}
	return nil
}

func (f DiscrepancyFilter) scope(db *gorm.DB) *gorm.DB {
	if f.EntityType != "" {
		db = db.Where("entity_type = ?", f.EntityType)
	}
	if f.Severity != "" {
		db = db.Where("severity = ?", f.Severity)
	}
	if f.Status == DiscrepancyStatusResolved {
		db = db.Where("resolved_at IS NOT NULL")
	} else {
		db = db.Where("resolved_at IS NULL")
	}
	return db
}

type DiscrepancyPage struct {
	Data       []*Discrepancy `json:"data"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// NormalizePage clamps a 1-indexed page and its size into the supported range.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// TotalPages is max(1, ceil(total/pageSize)).
func TotalPages(total int64, pageSize int) int {
	if pageSize < 1 || total <= 0 {
		return 1
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

func ListDiscrepancies(ctx context.Context, db *gorm.DB, filter DiscrepancyFilter, page, pageSize int) (*DiscrepancyPage, error) {
	if err := filter.normalize(); err != nil {
		return nil, err
	}
	page, pageSize = NormalizePage(page, pageSize)
	dbCtx := db.WithContext(ctx)

	var total int64
	if err := filter.scope(dbCtx.Model(&Discrepancy{})).Count(&total).Error; err != nil {
		return nil, utils.NewStorageError(err)
	}

	items := make([]*Discrepancy, 0)
	if total > 0 && int64((page-1)*pageSize) < total {
		if err := filter.scope(dbCtx.Model(&Discrepancy{})).
			Order("created_at DESC").Order("id").
			Limit(pageSize).Offset((page - 1) * pageSize).
			Find(&items).Error; err != nil {
			return nil, utils.NewStorageError(err)
		}
	}

	return &DiscrepancyPage{
		Data:       items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(total, pageSize),
	}, nil
}

// FindDiscrepancies returns up to limit rows matching filter, newest first. Used by export.
func FindDiscrepancies(ctx context.Context, db *gorm.DB, filter DiscrepancyFilter, limit int) ([]*Discrepancy, error) {
	if err := filter.normalize(); err != nil {
		return nil, err
	}
	items := make([]*Discrepancy, 0)
	q := filter.scope(db.WithContext(ctx).Model(&Discrepancy{})).Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, utils.NewStorageError(err)
	}
	return items, nil
}

func CountOpenBySeverity(ctx context.Context, db *gorm.DB) ([]DimensionCount, error) {
	counts, err := countOpenBy(ctx, db, "severity")
	if err != nil {
		return nil, err
	}
	sortBySeverityRank(counts)
	return counts, nil
}

func CountOpenByEntityType(ctx context.Context, db *gorm.DB) ([]DimensionCount, error) {
	counts, err := countOpenBy(ctx, db, "entity_type")
	if err != nil {
		return nil, err
	}
	sortByCountDesc(counts)
	return counts, nil
}

func CountOpenByDiscrepancyType(ctx context.Context, db *gorm.DB) ([]DimensionCount, error) {
	counts, err := countOpenBy(ctx, db, "discrepancy_type")
	if err != nil {
		return nil, err
	}
	sortByCountDesc(counts)
	return counts, nil
}

// column must be one of the fixed names above; it is interpolated into the query.
func countOpenBy(ctx context.Context, db *gorm.DB, column string) ([]DimensionCount, error) {
	counts := make([]DimensionCount, 0)
	err := db.WithContext(ctx).Model(&Discrepancy{}).
		Select(column + " AS dimension, COUNT(*) AS count").
		Where("resolved_at IS NULL").
		Group(column).
		Scan(&counts).Error
	if err != nil {
		return nil, utils.NewStorageError(err)
	}
	return counts, nil
}
