package models

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntityRecord is one live target row flattened to strings, keyed by column name.
type EntityRecord struct {
	ID     string
	Fields map[string]string
}

type EntityRecordSource struct {
	Table    string
	IDColumn string
	Columns  []string
}

func (s EntityRecordSource) validate() error {
	for _, ident := range append([]string{s.Table, s.IDColumn}, s.Columns...) {
		if !identifierPattern.MatchString(ident) {
			return fmt.Errorf("invalid identifier %q", ident)
		}
	}
	return nil
}

// LoadEntityRecords reads at most limit rows of source ordered by id.
func LoadEntityRecords(ctx context.Context, db *gorm.DB, source EntityRecordSource, limit int) ([]EntityRecord, error) {
	if err := source.validate(); err != nil {
		return nil, utils.NewInvalidStateError("record source: %v", err)
	}
	q := db.WithContext(ctx).Table(source.Table).Select(source.selectColumns()).Order(source.IDColumn)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return source.find(q)
}

func LoadEntityRecordsByIds(ctx context.Context, db *gorm.DB, source EntityRecordSource, ids []string) ([]EntityRecord, error) {
	if err := source.validate(); err != nil {
		return nil, utils.NewInvalidStateError("record source: %v", err)
	}
	if len(ids) == 0 {
		return []EntityRecord{}, nil
	}
	q := db.WithContext(ctx).Table(source.Table).Select(source.selectColumns()).
		Where(clause.IN{Column: clause.Column{Name: source.IDColumn}, Values: toInterfaces(ids)}).
		Order(source.IDColumn)
	return source.find(q)
}

func (s EntityRecordSource) selectColumns() []string {
	return append([]string{s.IDColumn}, s.Columns...)
}

func (s EntityRecordSource) find(q *gorm.DB) ([]EntityRecord, error) {
	var rows []map[string]interface{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, utils.NewStorageError(err)
	}
	records := make([]EntityRecord, 0, len(rows))
	for _, row := range rows {
		rec := EntityRecord{
			ID:     stringifyColumn(row[s.IDColumn]),
			Fields: make(map[string]string, len(s.Columns)),
		}
		for _, col := range s.Columns {
			rec.Fields[col] = stringifyColumn(row[col])
		}
		records = append(records, rec)
	}
	return records, nil
}

func toInterfaces(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}

func stringifyColumn(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case *string:
		return utils.DereferencePtr(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
