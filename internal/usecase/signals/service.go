// Package signals loads per-candidate statistics used by the reranker.
package signals

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/concept"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/logger"
)

// HubReader loads hub statistics.
type HubReader interface {
	HubStats(ctx context.Context, ids []string) (map[string]*candidate.HubStats, error)
}

// PopularityReader loads impression and click counts.
type PopularityReader interface {
	Popularity(ctx context.Context, ids []string, topN int) (map[string]*candidate.Popularity, error)
}

// ConceptReader serves the concept store snapshot.
type ConceptReader interface {
	Concepts(ctx context.Context) (*concept.Set, error)
}

// Collector gathers signals concurrently. Store failures degrade to missing data.
type Collector struct {
	hubs       HubReader
	popularity PopularityReader
	concepts   ConceptReader
	topN       int
}

// New creates a collector. topN is the position bound for popularity.
func New(h HubReader, p PopularityReader, c ConceptReader, topN int) *Collector {
	return &Collector{hubs: h, popularity: p, concepts: c, topN: topN}
}

// Collect attaches hub and popularity stats to cands in place and resolves
// the active sliders of q. A slider applies only when its concept is a known
// concept mentioned in the query; a nil q has none.
func (c *Collector) Collect(ctx context.Context, q *query.Query, cands []candidate.Candidate) []concept.Slider {
	log := logger.FromContext(ctx)
	ids := make([]string, len(cands))
	for i := range cands {
		ids[i] = cands[i].ID
	}

	var (
		hubs    map[string]*candidate.HubStats
		pop     map[string]*candidate.Popularity
		sliders []concept.Slider
	)

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		var err error
		if hubs, err = c.hubs.HubStats(ctx, ids); err != nil {
			log.Warn("Hub stats unavailable", zap.Error(err))
		}
		log.Debug("Hub stats loaded", zap.Int("found", len(hubs)), zap.Duration("duration", time.Since(start)))
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		if pop, err = c.popularity.Popularity(ctx, ids, c.topN); err != nil {
			log.Warn("Popularity unavailable", zap.Error(err))
		}
		log.Debug("Popularity loaded", zap.Int("found", len(pop)), zap.Duration("duration", time.Since(start)))
		return nil
	})
	if q != nil && q.HasSliders() {
		g.Go(func() error {
			set, err := c.concepts.Concepts(ctx)
			if err != nil {
				log.Warn("Concepts unavailable, sliders ignored", zap.Error(err))
				return nil
			}
			sliders = resolveSliders(set, q)
			return nil
		})
	}
	_ = g.Wait()

	for i := range cands {
		cands[i].Hub = hubs[cands[i].ID]
		cands[i].Popularity = pop[cands[i].ID]
	}
	return sliders
}

func resolveSliders(set *concept.Set, q *query.Query) []concept.Slider {
	tokens := queryTokens(q)
	var out []concept.Slider
	for _, s := range q.Sliders() {
		if _, ok := set.ByLabel(s.Concept); !ok {
			continue
		}
		if !containsPhrase(tokens, query.Tokens(s.Concept)) {
			continue
		}
		sl := concept.Slider{Label: s.Concept, Position: s.Position}
		if opp, ok := set.Opposite(s.Concept); ok {
			sl.Opposite = opp.Embedding
		}
		out = append(out, sl)
	}
	return out
}

// queryTokens covers the query text and, for composite queries, its parts.
func queryTokens(q *query.Query) []string {
	tokens := query.Tokens(q.Text())
	tokens = append(tokens, query.Tokens(q.MainConcept())...)
	for _, a := range q.Additions() {
		tokens = append(tokens, query.Tokens(a)...)
	}
	return tokens
}

// containsPhrase reports whether phrase occurs as a contiguous run of tokens.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
