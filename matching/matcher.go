package matching

import (
	"math"
	"strings"
)

// Record is one live entity row, all columns as strings.
type Record struct {
	ID     string
	Fields map[string]string
}

// NormalizedRecord carries a record's comparable field values. Key is the composite of
// the key fields and is empty when any key field is blank.
type NormalizedRecord struct {
	ID     string
	Key    string
	Values map[string]string
}

// Source names where a matcher's records live.
type Source struct {
	Table    string
	IDColumn string
	Columns  []string
}

type Matcher interface {
	EntityType() string
	Source() Source
	Normalize(record Record) NormalizedRecord
	// Score returns a confidence in [0,1] and the agreeing fields. 1.0 means every key field agrees.
	Score(a, b NormalizedRecord) (float64, []string)
	// BlockingKeys lists the values a record is bucketed under when searching for candidates.
	BlockingKeys(record NormalizedRecord) []string
	MinConfidence() float64
}

type Field struct {
	Name      string
	Weight    float64
	Key       bool
	Block     bool
	Normalize Normalizer
}

// FieldMatcher scores two records by weighted field agreement.
type FieldMatcher struct {
	entityType    string
	source        Source
	fields        []Field
	minConfidence float64
	totalWeight   float64
}

// partialCeiling bounds the confidence of any pair whose key fields do not all agree.
const partialCeiling = 0.9

func NewFieldMatcher(entityType string, table string, idColumn string, minConfidence float64, fields ...Field) *FieldMatcher {
	m := &FieldMatcher{
		entityType:    entityType,
		fields:        fields,
		minConfidence: minConfidence,
	}
	columns := make([]string, 0, len(fields))
	for i := range m.fields {
		if m.fields[i].Weight <= 0 {
			m.fields[i].Weight = 1
		}
		if m.fields[i].Normalize == nil {
			m.fields[i].Normalize = strings.TrimSpace
		}
		m.totalWeight += m.fields[i].Weight
		columns = append(columns, m.fields[i].Name)
	}
	m.source = Source{Table: table, IDColumn: idColumn, Columns: columns}
	return m
}

func (m *FieldMatcher) EntityType() string { return m.entityType }

func (m *FieldMatcher) Source() Source { return m.source }

func (m *FieldMatcher) MinConfidence() float64 { return m.minConfidence }

func (m *FieldMatcher) KeyFields() []string {
	var keys []string
	for _, f := range m.fields {
		if f.Key {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

func (m *FieldMatcher) Normalize(record Record) NormalizedRecord {
	n := NormalizedRecord{ID: record.ID, Values: make(map[string]string, len(m.fields))}
	var keyParts []string
	complete := true
	for _, f := range m.fields {
		v := f.Normalize(record.Fields[f.Name])
		n.Values[f.Name] = v
		if f.Key {
			if v == "" {
				complete = false
			}
			keyParts = append(keyParts, v)
		}
	}
	if complete && len(keyParts) > 0 {
		n.Key = strings.Join(keyParts, "|")
	}
	return n
}

func (m *FieldMatcher) BlockingKeys(record NormalizedRecord) []string {
	var keys []string
	if record.Key != "" {
		keys = append(keys, "key\x00"+record.Key)
	}
	for _, f := range m.fields {
		if !f.Block {
			continue
		}
		if v := record.Values[f.Name]; v != "" {
			keys = append(keys, f.Name+"\x00"+v)
		}
	}
	return keys
}

func (m *FieldMatcher) Score(a, b NormalizedRecord) (float64, []string) {
	var matched []string
	var agreeing float64
	allKeys := true
	hasKey := false
	for _, f := range m.fields {
		va, vb := a.Values[f.Name], b.Values[f.Name]
		agree := va != "" && va == vb
		if f.Key {
			hasKey = true
			if !agree {
				allKeys = false
			}
		}
		if agree {
			matched = append(matched, f.Name)
			agreeing += f.Weight
		}
	}
	if len(matched) == 0 || m.totalWeight == 0 {
		return 0, nil
	}
	if hasKey && allKeys {
		return 1.0, matched
	}
	confidence := partialCeiling * agreeing / m.totalWeight
	return math.Round(confidence*10000) / 10000, matched
}
