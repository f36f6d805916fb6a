package usecase

import (
	"sort"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	result domain.FusedResult
	order  int
}

// FuseRankedLists merges ranked lists with Reciprocal Rank Fusion. Each list
// contributes 1/(rank+k) per passage, rank being 0-based. Passages are
// deduplicated by ID and the representative is the copy with the highest
// local score (first seen on ties). The output is sorted by fused score,
// ties keep first-appearance order, and is truncated to topK when topK > 0.
func FuseRankedLists(lists []domain.RankedList, rrfK, topK int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	ordered := make([]*fusedCandidate, 0)
	for _, list := range lists {
		for rank, candidate := range list.Candidates {
			id := candidate.Passage.ID
			entry, ok := acc[id]
			if !ok {
				entry = &fusedCandidate{
					result: domain.FusedResult{Passage: candidate.Passage, LocalScore: candidate.Score},
					order:  len(ordered),
				}
				acc[id] = entry
				ordered = append(ordered, entry)
			} else if candidate.Score > entry.result.LocalScore {
				entry.result.Passage = candidate.Passage
				entry.result.LocalScore = candidate.Score
			}
			entry.result.Score += 1.0 / float64(rank+rrfK)
			entry.result.Hits++
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].result.Score != ordered[j].result.Score {
			return ordered[i].result.Score > ordered[j].result.Score
		}
		return ordered[i].order < ordered[j].order
	})

	out := make([]domain.FusedResult, 0, len(ordered))
	for _, entry := range ordered {
		out = append(out, entry.result)
	}
	return trimFused(out, topK)
}

func trimFused(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
