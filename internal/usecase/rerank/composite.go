package rerank

import (
	"sort"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
)

// Composite weights.
const (
	mainWeight     = 0.90
	additionWeight = 0.10
)

// applyComposite replaces scores with a rank blend of the standalone main
// concept ordering and the mean similarity to the additions.
func applyComposite(scored []candidate.Scored, additions [][]float32) {
	if len(scored) == 0 || len(additions) == 0 {
		return
	}

	for i := range scored {
		scored[i].MainSimilarity = scored[i].FinalScore
		var sum float64
		for _, a := range additions {
			sum += domain.Cosine(scored[i].Vector, a)
		}
		scored[i].AdditionSimilarity = sum / float64(len(additions))
	}

	mainRank := ranks(scored, func(s *candidate.Scored) float64 { return s.MainSimilarity })
	addRank := ranks(scored, func(s *candidate.Scored) float64 { return s.AdditionSimilarity })

	for i := range scored {
		combined := float64(mainRank[i])*mainWeight + float64(addRank[i])*additionWeight
		score := 1 / (1 + combined)
		scored[i].BaseScore = score
		scored[i].FinalScore = score
	}
}

// ranks returns 1-based ranks by signal desc, ties broken by id asc.
func ranks(scored []candidate.Scored, signal func(*candidate.Scored) float64) []int {
	idx := make([]int, len(scored))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := signal(&scored[idx[a]]), signal(&scored[idx[b]])
		if sa != sb {
			return sa > sb
		}
		return scored[idx[a]].ID < scored[idx[b]].ID
	})
	out := make([]int, len(scored))
	for r, i := range idx {
		out[i] = r + 1
	}
	return out
}
