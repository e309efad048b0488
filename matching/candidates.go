package matching

import (
	"sort"
)

type DuplicateCandidate struct {
	EntityType      string   `json:"entity_type"`
	EntityAId       string   `json:"entity_a_id"`
	EntityBId       string   `json:"entity_b_id"`
	MatchConfidence float64  `json:"match_confidence"`
	MatchedFields   []string `json:"matched_fields"`
}

// DetectCandidates scores every pair of records that share a blocking key and keeps pairs
// scoring above zero and at least the matcher's minimum. Output is sorted by confidence
// descending, then ids, and each pair appears once with EntityAId < EntityBId.
func DetectCandidates(m Matcher, records []Record) []DuplicateCandidate {
	candidates := make([]DuplicateCandidate, 0)
	if m == nil || len(records) < 2 {
		return candidates
	}

	normalized := make([]NormalizedRecord, len(records))
	blocks := make(map[string][]int)
	for i, rec := range records {
		normalized[i] = m.Normalize(rec)
		for _, key := range m.BlockingKeys(normalized[i]) {
			blocks[key] = append(blocks[key], i)
		}
	}

	type pair struct{ a, b int }
	seen := make(map[pair]bool)
	for _, members := range blocks {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				i, j := members[x], members[y]
				if i > j {
					i, j = j, i
				}
				p := pair{i, j}
				if i == j || seen[p] {
					continue
				}
				seen[p] = true
				if normalized[i].ID == normalized[j].ID {
					continue
				}

				confidence, fields := m.Score(normalized[i], normalized[j])
				if confidence <= 0 || confidence < m.MinConfidence() {
					continue
				}
				aId, bId := normalized[i].ID, normalized[j].ID
				if bId < aId {
					aId, bId = bId, aId
				}
				candidates = append(candidates, DuplicateCandidate{
					EntityType:      m.EntityType(),
					EntityAId:       aId,
					EntityBId:       bId,
					MatchConfidence: confidence,
					MatchedFields:   fields,
				})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.MatchConfidence != cj.MatchConfidence {
			return ci.MatchConfidence > cj.MatchConfidence
		}
		if ci.EntityAId != cj.EntityAId {
			return ci.EntityAId < cj.EntityAId
		}
		return ci.EntityBId < cj.EntityBId
	})
	return candidates
}
