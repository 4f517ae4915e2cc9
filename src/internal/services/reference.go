package services

import (
	"sort"

	"github.com/untruncd/untruncd/src/internal/domain"
)

// SelectReference picks the known-good exemplar out of candidates.
//
// An explicit override present in the set wins. Otherwise the strategy
// decides: "smallest" picks the minimum-size candidate (most likely a
// complete, working clip), "newest" the most recently modified one. Ties go
// to the first candidate in input order. Anything else quietly behaves like
// "smallest"; strict validation happens at the config boundary instead.
//
// Fewer than two candidates yields nil: a single file cannot serve as both
// reference and repair target.
func SelectReference(candidates []domain.Candidate, strategy domain.ReferenceStrategy, explicit string) *domain.Candidate {
	if len(candidates) < 2 {
		return nil
	}

	if explicit != "" {
		for i := range candidates {
			if candidates[i].Path == explicit {
				return &candidates[i]
			}
		}
	}

	sorted := make([]domain.Candidate, len(candidates))
	copy(sorted, candidates)

	switch strategy {
	case domain.StrategyNewest:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ModTime.After(sorted[j].ModTime)
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Size < sorted[j].Size
		})
	}

	return &sorted[0]
}
