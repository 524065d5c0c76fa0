// Package rerank turns retrieval similarity into the final, deterministic ranking.
package rerank

import (
	"sort"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/concept"
)

// Input is everything one rerank pass depends on.
type Input struct {
	Candidates []candidate.Candidate
	// ExtensionsActive is set when category extensions shaped the pool.
	ExtensionsActive bool
	Sliders          []concept.Slider
	// AdditionVectors enable the composite blend.
	AdditionVectors [][]float32
}

// Rerank scores, orders and deduplicates candidates. Equal inputs always
// produce the same output.
func Rerank(in Input) []candidate.Scored {
	scored := make([]candidate.Scored, len(in.Candidates))
	for i, c := range in.Candidates {
		scored[i] = score(c, in.ExtensionsActive)
	}

	applySliders(scored, in.Sliders)
	applyComposite(scored, in.AdditionVectors)

	for i := range scored {
		scored[i].FinalScore = domain.Round(scored[i].FinalScore, 4)
	}
	sortScored(scored)
	return dedupeByCollection(scored)
}

func score(c candidate.Candidate, extensionsActive bool) candidate.Scored {
	base := c.Similarity
	pop := PopularityPenalty(c.Popularity)
	if extensionsActive {
		pop *= popExtensionScale
	}
	mult := HubMultiplier(c.Hub, base, extensionsActive)
	adjusted := domain.Round(base*mult, 6)

	return candidate.Scored{
		Candidate:         c,
		BaseScore:         base,
		AdjustedBaseScore: adjusted,
		HubMultiplier:     mult,
		PopularityPenalty: pop,
		FinalScore:        adjusted - pop,
	}
}

func sortScored(s []candidate.Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].FinalScore != s[j].FinalScore {
			return s[i].FinalScore > s[j].FinalScore
		}
		return s[i].ID < s[j].ID
	})
}

// dedupeByCollection keeps the best-ranked image of each collection.
// Images without a collection are never merged.
func dedupeByCollection(s []candidate.Scored) []candidate.Scored {
	seen := make(map[string]struct{}, len(s))
	out := s[:0]
	for _, c := range s {
		key := c.CollectionID
		if key == "" {
			key = "\x00" + c.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
