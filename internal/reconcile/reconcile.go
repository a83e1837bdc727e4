// Package reconcile merges candidate lists reported by multiple strategies
// for the same school and year.
package reconcile

import (
	"strings"

	"PromptHarvester/internal/domain"
)

// dedupKeyLen is the lowercase-prefix length used as the dedup key. Two
// reports of the same prompt with different leading text are not merged;
// that is an accepted limitation of the prefix heuristic.
const dedupKeyLen = 80

// Merge reduces all candidates from all source results to one list with at
// most one candidate per dedup key, keeping the strictly highest-confidence
// version (ties keep the first seen). Output preserves first-seen key order.
func Merge(results []domain.SourceResult) []domain.PromptCandidate {
	best := map[string]int{}
	var merged []domain.PromptCandidate

	for _, result := range results {
		for _, candidate := range result.Candidates {
			key := dedupKey(candidate.PromptText)
			if key == "" {
				continue
			}
			idx, ok := best[key]
			if !ok {
				best[key] = len(merged)
				merged = append(merged, candidate)
				continue
			}
			if candidate.ConfidenceScore > merged[idx].ConfidenceScore {
				merged[idx] = candidate
			}
		}
	}
	return merged
}

func dedupKey(text string) string {
	key := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if len(key) > dedupKeyLen {
		key = key[:dedupKeyLen]
	}
	return key
}
