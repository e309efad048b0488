package models

import (
	"context"
	"sort"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

type DimensionCount struct {
	Dimension string `json:"dimension"`
	Count     int64  `json:"count"`
}

type DiscrepancyDashboard struct {
	TotalDiscrepancies int64            `json:"total_discrepancies"`
	BySeverity         []DimensionCount `json:"by_severity"`
	ByEntityType       []DimensionCount `json:"by_entity_type"`
	ByDiscrepancyType  []DimensionCount `json:"by_discrepancy_type"`
}

type openDiscrepancyGroup struct {
	Severity        string
	EntityType      string
	DiscrepancyType string
	Count           int64
}

// GetDiscrepancyDashboard folds one grouped read of open rows into the three breakdowns,
// so every breakdown sums to the same total. No locks are taken.
func GetDiscrepancyDashboard(ctx context.Context, db *gorm.DB) (*DiscrepancyDashboard, error) {
	var groups []openDiscrepancyGroup
	err := db.WithContext(ctx).Model(&Discrepancy{}).
		Select("severity, entity_type, discrepancy_type, COUNT(*) AS count").
		Where("resolved_at IS NULL").
		Group("severity, entity_type, discrepancy_type").
		Scan(&groups).Error
	if err != nil {
		return nil, utils.NewStorageError(err)
	}
	return foldDashboard(groups), nil
}

func foldDashboard(groups []openDiscrepancyGroup) *DiscrepancyDashboard {
	bySeverity := map[string]int64{}
	byEntityType := map[string]int64{}
	byDiscrepancyType := map[string]int64{}
	var total int64
	for _, g := range groups {
		total += g.Count
		bySeverity[g.Severity] += g.Count
		byEntityType[g.EntityType] += g.Count
		byDiscrepancyType[g.DiscrepancyType] += g.Count
	}

	dashboard := &DiscrepancyDashboard{
		TotalDiscrepancies: total,
		BySeverity:         toDimensionCounts(bySeverity),
		ByEntityType:       toDimensionCounts(byEntityType),
		ByDiscrepancyType:  toDimensionCounts(byDiscrepancyType),
	}
	sortBySeverityRank(dashboard.BySeverity)
	sortByCountDesc(dashboard.ByEntityType)
	sortByCountDesc(dashboard.ByDiscrepancyType)
	return dashboard
}

func toDimensionCounts(m map[string]int64) []DimensionCount {
	result := make([]DimensionCount, 0, len(m))
	for k, v := range m {
		result = append(result, DimensionCount{Dimension: k, Count: v})
	}
	return result
}

func sortBySeverityRank(counts []DimensionCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		ri := DiscrepancySeverity(counts[i].Dimension).Rank()
		rj := DiscrepancySeverity(counts[j].Dimension).Rank()
		if ri != rj {
			// unknown values (rank 0) sort last
			if ri == 0 || rj == 0 {
				return rj == 0
			}
			return ri < rj
		}
		return counts[i].Dimension < counts[j].Dimension
	})
}

func sortByCountDesc(counts []DimensionCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Dimension < counts[j].Dimension
	})
}
