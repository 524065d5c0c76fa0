// Package balance spreads an unfiltered result list across categories.
package balance

import (
	"sort"

	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
)

// DefaultPerCategory is the per-category quota.
const DefaultPerCategory = 10

// Balance selects up to perCategory results of each category, taking them
// round-robin in the fixed category order until limit is reached. The
// selection keeps the ranked order: final desc, then id asc.
// Results of unknown categories form a last bucket.
func Balance(ranked []candidate.Scored, limit, perCategory int) []candidate.Scored {
	if perCategory <= 0 {
		perCategory = DefaultPerCategory
	}
	cats := category.Ordered()
	buckets := make([][]candidate.Scored, len(cats)+1)
	for _, s := range ranked {
		i := s.Category.Index()
		if i < 0 {
			i = len(cats)
		}
		if len(buckets[i]) < perCategory {
			buckets[i] = append(buckets[i], s)
		}
	}

	out := make([]candidate.Scored, 0, min(limit, len(ranked)))
	for round := 0; round < perCategory && len(out) < limit; round++ {
		for _, b := range buckets {
			if round < len(b) && len(out) < limit {
				out = append(out, b[round])
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}
