package models

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// EntityTarget says where the live rows of an entity type are kept: the table, the natural-key
// column that failed import rows are looked up by, and the creation-time column counted per run window.
type EntityTarget struct {
	Table           string
	KeyColumn       string
	CreatedAtColumn string
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,63}$`)

var (
	entityTargetsMu sync.RWMutex
	entityTargets   = map[string]EntityTarget{
		"cars":      {Table: "cars", KeyColumn: "car_number", CreatedAtColumn: "created_at"},
		"customers": {Table: "customers", KeyColumn: "customer_code", CreatedAtColumn: "created_at"},
		"invoices":  {Table: "invoices", KeyColumn: "invoice_number", CreatedAtColumn: "created_at"},
		"contracts": {Table: "contracts", KeyColumn: "contract_number", CreatedAtColumn: "created_at"},
	}
)

func (t EntityTarget) validate() error {
	for _, ident := range []string{t.Table, t.KeyColumn, t.CreatedAtColumn} {
		if !identifierPattern.MatchString(ident) {
			return fmt.Errorf("invalid identifier %q", ident)
		}
	}
	return nil
}

// RegisterEntityTarget adds or replaces the target mapping for entityType.
func RegisterEntityTarget(entityType string, target EntityTarget) error {
	if target.CreatedAtColumn == "" {
		target.CreatedAtColumn = "created_at"
	}
	if err := target.validate(); err != nil {
		return err
	}
	entityTargetsMu.Lock()
	defer entityTargetsMu.Unlock()
	entityTargets[entityType] = target
	return nil
}

func LookupEntityTarget(entityType string) (EntityTarget, bool) {
	entityTargetsMu.RLock()
	defer entityTargetsMu.RUnlock()
	t, ok := entityTargets[entityType]
	return t, ok
}

func RegisteredEntityTypes() []string {
	entityTargetsMu.RLock()
	defer entityTargetsMu.RUnlock()
	result := make([]string, 0, len(entityTargets))
	for k := range entityTargets {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
