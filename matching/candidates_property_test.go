package matching

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var customerFieldNames = []string{"customer_name", "tax_id", "phone", "email"}

func genCustomerRecord(id string) gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("Acme Rail", "acme  rail", "Globex", "", "Initech"),
		gen.OneConstOf("", "12-34", "1234", "9999"),
		gen.OneConstOf("", "(201) 555-0123", "+1 201 555 0123", "212 555 0100"),
		gen.OneConstOf("", "ops@acme.com", "OPS@acme.com", "billing@globex.com"),
	).Map(func(values []interface{}) Record {
		return customer(id, values[0].(string), values[1].(string), values[2].(string), values[3].(string))
	})
}

func TestCandidateConfidenceBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	m := NewCustomerMatcher("US")

	properties.Property("confidence is in (0,1] and 1.0 carries every key field", prop.ForAll(
		func(a, b, c, d Record) bool {
			for _, candidate := range DetectCandidates(m, []Record{a, b, c, d}) {
				if candidate.MatchConfidence <= 0 || candidate.MatchConfidence > 1.0 {
					return false
				}
				if candidate.MatchConfidence == 1.0 && !containsAll(candidate.MatchedFields, m.KeyFields()) {
					return false
				}
				if candidate.EntityAId >= candidate.EntityBId {
					return false
				}
			}
			return true
		},
		genCustomerRecord("a"),
		genCustomerRecord("b"),
		genCustomerRecord("c"),
		genCustomerRecord("d"),
	))

	properties.TestingRun(t)
}

func TestScoreMonotonicInAgreeingFields(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	m := NewCustomerMatcher("US")

	properties.Property("copying one more field from a never lowers the score", prop.ForAll(
		func(a, b Record, fieldIdx int) bool {
			field := customerFieldNames[fieldIdx]
			if m.Normalize(a).Values[field] == "" {
				return true
			}
			before, _ := m.Score(m.Normalize(a), m.Normalize(b))

			widened := Record{ID: b.ID, Fields: map[string]string{}}
			for k, v := range b.Fields {
				widened.Fields[k] = v
			}
			widened.Fields[field] = a.Fields[field]
			after, _ := m.Score(m.Normalize(a), m.Normalize(widened))
			return after >= before
		},
		genCustomerRecord("a"),
		genCustomerRecord("b"),
		gen.IntRange(0, len(customerFieldNames)-1),
	))

	properties.Property("partial agreement stays below 1.0", prop.ForAll(
		func(a, b Record) bool {
			na, nb := m.Normalize(a), m.Normalize(b)
			confidence, _ := m.Score(na, nb)
			if na.Key != "" && na.Key == nb.Key {
				return confidence == 1.0
			}
			return confidence < 1.0
		},
		genCustomerRecord("a"),
		genCustomerRecord("b"),
	))

	properties.TestingRun(t)
}

func containsAll(haystack []string, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}
