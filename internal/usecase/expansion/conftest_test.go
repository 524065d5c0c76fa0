package expansion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/designdex/internal/db"
	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/worker"
)

// mockLLM answers with a numbered phrase per call unless fn is set.
type mockLLM struct {
	fn    func(ctx context.Context, prompt string) (string, error)
	calls atomic.Int64
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	n := m.calls.Add(1)
	if m.fn != nil {
		return m.fn(ctx, prompt)
	}
	return fmt.Sprintf(`["phrase %d"]`, n), nil
}

type mockEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: vecFor(text)}, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.batches = append(m.batches, texts)
	m.mu.Unlock()
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vecFor(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func (m *mockEmbedder) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// vecFor returns a non-normalized vector derived from the text length.
func vecFor(text string) []float32 {
	return []float32{float32(len(text)), 3, 4}
}

// memDurable is an in-memory durable tier with counters.
type memDurable struct {
	mu       sync.Mutex
	entries  map[extension.Key]extension.Entry
	abstract map[string]bool
	puts     map[extension.Key]int
	touches  map[extension.Key]time.Time
	getErr   error
}

func newMemDurable() *memDurable {
	return &memDurable{
		entries:  map[extension.Key]extension.Entry{},
		abstract: map[string]bool{},
		puts:     map[extension.Key]int{},
		touches:  map[extension.Key]time.Time{},
	}
}

func (m *memDurable) Get(_ context.Context, key extension.Key) (*extension.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return &e, nil
}

func (m *memDurable) Put(_ context.Context, e *extension.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = *e
	m.puts[e.Key]++
	return nil
}

func (m *memDurable) Touch(_ context.Context, key extension.Key, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touches[key] = at
	if e, ok := m.entries[key]; ok {
		e.LastUsedAt = at
		m.entries[key] = e
	}
	return nil
}

func (m *memDurable) touched(key extension.Key) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.touches[key]
	return at, ok
}

func (m *memDurable) DeleteTerm(_ context.Context, term string, mode extension.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if k.Term == extension.NormalizeTerm(term) && (k.Mode == mode || k.Mode == extension.Expand) {
			delete(m.entries, k)
		}
	}
	delete(m.abstract, extension.NormalizeTerm(term))
	return nil
}

func (m *memDurable) Abstractness(_ context.Context, term string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.abstract[extension.NormalizeTerm(term)]
	return a, ok, nil
}

func (m *memDurable) PutAbstractness(_ context.Context, term string, abstract bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abstract[extension.NormalizeTerm(term)] = abstract
	return nil
}

func (m *memDurable) totalPuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.puts {
		n += c
	}
	return n
}

// slowDurable delays every Get.
type slowDurable struct {
	*memDurable
	delay time.Duration
	gets  atomic.Int64
}

func (s *slowDurable) Get(ctx context.Context, key extension.Key) (*extension.Entry, error) {
	s.gets.Add(1)
	time.Sleep(s.delay)
	return s.memDurable.Get(ctx, key)
}

// syncScheduler runs tasks inline.
type syncScheduler struct {
	mu    sync.Mutex
	names []string
}

func (s *syncScheduler) Go(ctx context.Context, name string, fn worker.Task) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	_ = fn(ctx)
}

func promptCategory(prompt string) string {
	for _, c := range []string{"websites", "logos", "graphic", "packaging", "branding", "illustration", "photograph"} {
		if strings.Contains(prompt, c) {
			return c
		}
	}
	return ""
}
