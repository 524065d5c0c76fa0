package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/concept"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/usecase/impression"
	"github.com/kailas-cloud/designdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/designdex/internal/worker"
)

// --- pipeline stubs ---

type stubRetriever struct {
	res         *retrieval.Result
	err         error
	hadDeadline bool
	gotVector   []float32
	gotCat      category.Category
}

func (s *stubRetriever) Retrieve(ctx context.Context, _ *query.Query) (*retrieval.Result, error) {
	_, s.hadDeadline = ctx.Deadline()
	return s.res, s.err
}

func (s *stubRetriever) RetrieveVector(
	ctx context.Context, v []float32, cat category.Category,
) (*retrieval.Result, error) {
	_, s.hadDeadline = ctx.Deadline()
	s.gotVector, s.gotCat = v, cat
	return s.res, s.err
}

type noSignals struct{}

func (noSignals) Collect(context.Context, *query.Query, []candidate.Candidate) []concept.Slider {
	return nil
}

type recordedImpression struct {
	meta    impression.Meta
	results []candidate.Scored
}

type mockRecorder struct {
	mu      sync.Mutex
	records []recordedImpression
}

func (m *mockRecorder) Record(_ context.Context, meta impression.Meta, results []candidate.Scored) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recordedImpression{meta: meta, results: results})
}

type stubImages struct {
	vec []float32
	err error
}

func (s *stubImages) EmbedImage(context.Context, []byte) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: s.vec}, s.err
}

// --- collaborators of the real pipeline ---

// memIndex ranks a fixed catalog by cosine similarity.
type memIndex struct {
	mu      sync.Mutex
	catalog []candidate.Candidate
	cats    map[category.Category]int
}

func (m *memIndex) Nearest(_ context.Context, v []float32, cat category.Category, k int) ([]candidate.Candidate, error) {
	m.mu.Lock()
	if m.cats == nil {
		m.cats = map[category.Category]int{}
	}
	m.cats[cat]++
	m.mu.Unlock()

	var out []candidate.Candidate
	for _, c := range m.catalog {
		if !cat.IsAll() && c.Category != cat {
			continue
		}
		c.Similarity = domain.Cosine(v, c.Vector)
		out = append(out, c)
	}
	candidate.SortBySimilarity(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memIndex) categories() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cats)
}

// hashEmbedder maps fixed texts to fixed vectors and anything else to a
// vector derived from its hash.
type hashEmbedder struct {
	fixed map[string][]float32
}

func (h *hashEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if v, ok := h.fixed[text]; ok {
		return domain.EmbeddingResult{Embedding: v}, nil
	}
	f := fnv.New32a()
	_, _ = f.Write([]byte(text))
	n := f.Sum32()
	return domain.EmbeddingResult{Embedding: []float32{float32(1 + n%7), float32(1 + (n/7)%5), 2}}, nil
}

type countingLLM struct {
	calls atomic.Int64
}

func (l *countingLLM) Generate(context.Context, string) (string, error) {
	n := l.calls.Add(1)
	return fmt.Sprintf(`["rendered detail %d"]`, n), nil
}

type fixedClassifier bool

func (f fixedClassifier) IsAbstract(context.Context, string) bool { return bool(f) }

type nopHubs struct{}

func (nopHubs) HubStats(context.Context, []string) (map[string]*candidate.HubStats, error) {
	return nil, nil
}

type nopPopularity struct{}

func (nopPopularity) Popularity(context.Context, []string, int) (map[string]*candidate.Popularity, error) {
	return nil, nil
}

type nopConcepts struct{}

func (nopConcepts) Concepts(context.Context) (*concept.Set, error) {
	return concept.NewSet(nil), nil
}

type inlineScheduler struct{}

func (inlineScheduler) Go(ctx context.Context, _ string, fn worker.Task) { _ = fn(ctx) }

// catalog returns two images per category with distinct directions.
func catalog() []candidate.Candidate {
	var out []candidate.Candidate
	for i, c := range category.Ordered() {
		f := float32(i + 1)
		out = append(out,
			candidate.Candidate{
				ID: fmt.Sprintf("%s-a", c), CollectionID: fmt.Sprintf("col-%d-a", i),
				Category: c, Vector: []float32{f, 1, 2},
			},
			candidate.Candidate{
				ID: fmt.Sprintf("%s-b", c), CollectionID: fmt.Sprintf("col-%d-b", i),
				Category: c, Vector: []float32{1, f, 3},
			},
		)
	}
	return out
}

func scored(id string, cat category.Category, final float64) candidate.Candidate {
	return candidate.Candidate{ID: id, CollectionID: "col-" + id, Category: cat, Similarity: final}
}

func mustQuery(p query.Params) *query.Query {
	q, err := query.New(p)
	if err != nil {
		panic(err)
	}
	return &q
}
