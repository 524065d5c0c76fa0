package retrieval

import (
	"context"
	"sort"
	"sync"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/usecase/analyzer"
)

type nearestCall struct {
	vector []float32
	cat    category.Category
	k      int
}

// mockIndex ranks a fixed catalog by dot product with the query vector.
type mockIndex struct {
	mu      sync.Mutex
	catalog []candidate.Candidate
	calls   []nearestCall
	err     error
}

func (m *mockIndex) Nearest(_ context.Context, v []float32, cat category.Category, k int) ([]candidate.Candidate, error) {
	m.mu.Lock()
	m.calls = append(m.calls, nearestCall{vector: v, cat: cat, k: k})
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
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

func (m *mockIndex) sortedCalls() []nearestCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]nearestCall(nil), m.calls...)
	sort.Slice(out, func(i, j int) bool { return out[i].cat.Index() < out[j].cat.Index() })
	return out
}

type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls = append(m.calls, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

type mockExpander struct {
	exts    []extension.Entry
	expand  *extension.Entry
	extArgs []string
}

func (m *mockExpander) Extensions(_ context.Context, term string, _ extension.Mode) []extension.Entry {
	m.extArgs = append(m.extArgs, term)
	return m.exts
}

func (m *mockExpander) Expand(_ context.Context, _ string) (extension.Entry, bool) {
	if m.expand == nil {
		return extension.Entry{}, false
	}
	return *m.expand, true
}

// fixedRouter returns route for every text.
type fixedRouter struct {
	route analyzer.Route
	texts []string
}

func (r *fixedRouter) Analyze(_ context.Context, text string, _ query.Source) analyzer.Plan {
	r.texts = append(r.texts, text)
	wc := query.WordCount(text)
	return analyzer.Plan{Route: r.route, WordCount: wc, UseExpansion: wc < 3}
}

func testCatalog() []candidate.Candidate {
	return []candidate.Candidate{
		{ID: "w1", CollectionID: "c1", Category: category.Websites, Vector: []float32{1, 0, 0}},
		{ID: "w2", CollectionID: "c2", Category: category.Websites, Vector: []float32{0, 1, 0}},
		{ID: "l1", CollectionID: "c3", Category: category.Logos, Vector: []float32{0.8, 0.6, 0}},
		{ID: "l2", CollectionID: "c4", Category: category.Logos, Vector: []float32{0, 0, 1}},
		{ID: "p1", CollectionID: "c5", Category: category.Photography, Vector: []float32{0.6, 0.8, 0}},
	}
}

func allExtensions(v []float32) []extension.Entry {
	var out []extension.Entry
	for _, c := range category.Ordered() {
		out = append(out, extension.Entry{Key: extension.NewKey("3d", c, extension.Search), Text: "ext " + string(c), Embedding: v})
	}
	return out
}

func mustQuery(p query.Params) *query.Query {
	q, err := query.New(p)
	if err != nil {
		panic(err)
	}
	return &q
}
