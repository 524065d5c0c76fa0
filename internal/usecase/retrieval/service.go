// Package retrieval turns an analysed query into a candidate pool.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/logger"
	"github.com/kailas-cloud/designdex/internal/usecase/analyzer"
)

// Config sizes candidate pools.
type Config struct {
	WidePool        int // extensions active or category unrestricted
	PerCategoryPool int // per category fan-out; single category short queries
	NarrowPool      int // single category multi-word literal queries
}

// DefaultConfig returns the standard pool sizes.
func DefaultConfig() Config {
	return Config{WidePool: 400, PerCategoryPool: 120, NarrowPool: 60}
}

// Result is the candidate pool with everything later stages need.
type Result struct {
	Plan analyzer.Plan
	// Vector is the main query vector.
	Vector []float32
	// Extensions are the category extensions in effect, in category order.
	Extensions []extension.Entry
	// AdditionVectors are set for composite queries.
	AdditionVectors [][]float32
	Candidates      []candidate.Candidate
}

// ExtensionsActive reports whether category extensions shaped the pool.
func (r *Result) ExtensionsActive() bool { return len(r.Extensions) > 0 }

// Service retrieves candidates.
type Service struct {
	index  Index
	embed  domain.Embedder
	expand Expander
	router Router
	cfg    Config
}

// New creates a retrieval service.
func New(index Index, embed domain.Embedder, expand Expander, router Router, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.WidePool <= 0 {
		cfg.WidePool = def.WidePool
	}
	if cfg.PerCategoryPool <= 0 {
		cfg.PerCategoryPool = def.PerCategoryPool
	}
	if cfg.NarrowPool <= 0 {
		cfg.NarrowPool = def.NarrowPool
	}
	return &Service{index: index, embed: embed, expand: expand, router: router, cfg: cfg}
}

// Retrieve resolves query vectors and runs the nearest-neighbour search.
// Composite queries are routed by their main concept alone, so adding
// refinements never changes the pool.
func (s *Service) Retrieve(ctx context.Context, q *query.Query) (*Result, error) {
	term := q.Text()
	if q.IsComposite() {
		term = q.MainConcept()
	}

	res := &Result{Plan: s.router.Analyze(ctx, term, q.Source())}
	if err := s.resolveVectors(ctx, term, q.Category(), res); err != nil {
		return nil, err
	}

	if q.IsComposite() {
		add, err := domain.BatchEmbed(ctx, s.embed, q.Additions())
		if err != nil {
			return nil, fmt.Errorf("%w: embed additions: %w", domain.ErrSearchUnavailable, err)
		}
		res.AdditionVectors = make([][]float32, len(add.Embeddings))
		for i, v := range add.Embeddings {
			res.AdditionVectors[i] = domain.Normalize(v)
		}
	}

	cands, err := s.search(ctx, res, q.Category())
	if err != nil {
		return nil, err
	}
	res.Candidates = cands
	return res, nil
}

// RetrieveVector searches with a precomputed vector, e.g. an image embedding.
func (s *Service) RetrieveVector(ctx context.Context, vector []float32, cat category.Category) (*Result, error) {
	res := &Result{Plan: analyzer.Plan{Route: analyzer.Image}, Vector: domain.Normalize(vector)}
	cands, err := s.search(ctx, res, cat)
	if err != nil {
		return nil, err
	}
	res.Candidates = cands
	return res, nil
}

func (s *Service) resolveVectors(ctx context.Context, term string, cat category.Category, res *Result) error {
	log := logger.FromContext(ctx)

	switch {
	case res.Plan.UsesCategoryExtensions():
		res.Extensions = s.expand.Extensions(ctx, term, res.Plan.ExtensionMode())
		if len(res.Extensions) > 0 {
			res.Vector = mainExtensionVector(res.Extensions, cat)
			return nil
		}
		log.Warn("No extensions available, falling back to direct", zap.String("route", string(res.Plan.Route)))
	case res.Plan.Route == analyzer.Expansion:
		if e, ok := s.expand.Expand(ctx, term); ok {
			res.Vector = e.Embedding
			return nil
		}
		log.Warn("Expansion unavailable, falling back to direct")
	}

	emb, err := s.embed.Embed(ctx, term)
	if err != nil {
		return fmt.Errorf("%w: embed query: %w", domain.ErrSearchUnavailable, err)
	}
	res.Vector = domain.Normalize(emb.Embedding)
	return nil
}

// mainExtensionVector picks the extension of the filtered category, or the
// normalized centroid of all extensions.
func mainExtensionVector(exts []extension.Entry, cat category.Category) []float32 {
	for _, e := range exts {
		if e.Key.Category == cat {
			return e.Embedding
		}
	}
	centroid := make([]float32, len(exts[0].Embedding))
	for _, e := range exts {
		for i := range centroid {
			if i < len(e.Embedding) {
				centroid[i] += e.Embedding[i]
			}
		}
	}
	return domain.Normalize(centroid)
}

// PoolSize returns the number of neighbours requested for a single search.
func (s *Service) PoolSize(res *Result, cat category.Category) int {
	switch {
	case res.ExtensionsActive() || cat.IsAll():
		return s.cfg.WidePool
	case res.Plan.Route == analyzer.Image || res.Plan.WordCount < 3:
		return s.cfg.PerCategoryPool
	default:
		return s.cfg.NarrowPool
	}
}

func (s *Service) search(ctx context.Context, res *Result, cat category.Category) ([]candidate.Candidate, error) {
	if !(cat.IsAll() && res.ExtensionsActive()) {
		vec := res.Vector
		for _, e := range res.Extensions {
			if e.Key.Category == cat {
				vec = e.Embedding
			}
		}
		cands, err := s.index.Nearest(ctx, vec, cat, s.PoolSize(res, cat))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrSearchUnavailable, err)
		}
		return cands, nil
	}
	return s.fanOut(ctx, res)
}

// fanOut searches every category with its own extension vector, falling back
// to the main vector for categories without one, then merges by id.
func (s *Service) fanOut(ctx context.Context, res *Result) ([]candidate.Candidate, error) {
	byCat := make(map[category.Category][]float32, len(res.Extensions))
	for _, e := range res.Extensions {
		byCat[e.Key.Category] = e.Embedding
	}

	cats := category.Ordered()
	parts := make([][]candidate.Candidate, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cats {
		vec, ok := byCat[c]
		if !ok {
			vec = res.Vector
		}
		g.Go(func() error {
			got, err := s.index.Nearest(gctx, vec, c, s.cfg.PerCategoryPool)
			if err != nil {
				return fmt.Errorf("search %s: %w", c, err)
			}
			parts[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSearchUnavailable, err)
	}
	return merge(parts), nil
}

// merge unions candidate lists keeping the highest similarity per id.
func merge(parts [][]candidate.Candidate) []candidate.Candidate {
	best := make(map[string]int)
	var out []candidate.Candidate
	for _, part := range parts {
		for _, c := range part {
			if i, ok := best[c.ID]; ok {
				if c.Similarity > out[i].Similarity {
					out[i] = c
				}
				continue
			}
			best[c.ID] = len(out)
			out = append(out, c)
		}
	}
	candidate.SortBySimilarity(out)
	return out
}
