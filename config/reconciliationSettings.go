package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	AuditSinkDB     = "db"
	AuditSinkPubSub = "pubsub"
	AuditSinkBoth   = "both"
)

// CountCriticalPercent is the row-count gap (percent of the imported count) at or above
// which a count_mismatch is critical.
//
// Set via env:
// - RECON_COUNT_CRITICAL_PCT=10
func CountCriticalPercent() decimal.Decimal {
	v := strings.TrimSpace(os.Getenv("RECON_COUNT_CRITICAL_PCT"))
	if v == "" {
		return decimal.NewFromInt(10)
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return decimal.NewFromInt(10)
	}
	return d
}

// SafetyCriticalEntityTypes lists entity types whose missing rows are critical rather
// than warning. Empty unless configured.
//
// Set via env:
// - RECON_SAFETY_CRITICAL_ENTITY_TYPES="cars,tank_cars"
func SafetyCriticalEntityTypes() map[string]bool {
	raw := os.Getenv("RECON_SAFETY_CRITICAL_ENTITY_TYPES")
	result := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			result[part] = true
		}
	}
	return result
}

// CutoffGraceSeconds widens the count window past completed_at for late-committing writers.
func CutoffGraceSeconds() int {
	n := IntFromEnv("RECON_CUTOFF_GRACE_SECONDS", 0)
	if n < 0 {
		return 0
	}
	return n
}

// AuditSink selects where resolution transitions go: db, pubsub or both.
func AuditSink() string {
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("AUDIT_SINK"))); v {
	case AuditSinkPubSub, AuditSinkBoth:
		return v
	default:
		return AuditSinkDB
	}
}

// DuplicateScanLimit caps how many target rows one detection pass loads.
func DuplicateScanLimit() int {
	n := IntFromEnv("DUPLICATE_SCAN_LIMIT", 5000)
	if n <= 0 {
		return 5000
	}
	return n
}

func PhoneDefaultRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	if v == "" {
		return "US"
	}
	return v
}
