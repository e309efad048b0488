package workflow

import (
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/shopspring/decimal"
)

// SeverityPolicy assigns severities to the discrepancies a reconciliation pass produces.
type SeverityPolicy struct {
	SafetyCriticalEntityTypes map[string]bool
	// CountCriticalPercent is the gap, as a percent of the source count, from which a
	// count mismatch is critical.
	CountCriticalPercent decimal.Decimal
}

func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{
		SafetyCriticalEntityTypes: config.SafetyCriticalEntityTypes(),
		CountCriticalPercent:      config.CountCriticalPercent(),
	}
}

func (p SeverityPolicy) MissingInTarget(entityType string) models.DiscrepancySeverity {
	if p.SafetyCriticalEntityTypes[entityType] {
		return models.DiscrepancySeverityCritical
	}
	return models.DiscrepancySeverityWarning
}

// CountGapPercent is |source-target| / source * 100 rounded to two places; 100 when source is 0.
func CountGapPercent(sourceCount, targetCount int64) decimal.Decimal {
	diff := decimal.NewFromInt(sourceCount - targetCount).Abs()
	if sourceCount == 0 {
		if diff.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return diff.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(sourceCount)).Round(2)
}

func (p SeverityPolicy) CountMismatch(sourceCount, targetCount int64) models.DiscrepancySeverity {
	if sourceCount == 0 && targetCount > 0 {
		return models.DiscrepancySeverityCritical
	}
	if CountGapPercent(sourceCount, targetCount).GreaterThanOrEqual(p.CountCriticalPercent) {
		return models.DiscrepancySeverityCritical
	}
	return models.DiscrepancySeverityWarning
}
