package expansion

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
)

type fixture struct {
	svc     *Service
	cache   *Cache
	llm     *mockLLM
	embed   *mockEmbedder
	durable *memDurable
	tasks   *syncScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cache:   NewCache(),
		llm:     &mockLLM{},
		embed:   &mockEmbedder{},
		durable: newMemDurable(),
		tasks:   &syncScheduler{},
	}
	f.svc = New(f.cache, f.durable, f.llm, f.embed, f.tasks, time.Second)
	return f
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestExtensions_MissGeneratesEveryCategory(t *testing.T) {
	f := newFixture(t)

	got := f.svc.Extensions(context.Background(), "3D", extension.Search)

	require.Len(t, got, 7)
	for i, c := range category.Ordered() {
		assert.Equal(t, c, got[i].Key.Category, "fixed category order")
		assert.Equal(t, "3d", got[i].Key.Term)
		assert.InDelta(t, 1.0, norm(got[i].Embedding), 1e-6, "normalized")
	}
	assert.EqualValues(t, 7, f.llm.calls.Load())

	require.Equal(t, 1, f.embed.batchCount(), "one batch for all misses")
	for i, in := range f.embed.batches[0] {
		assert.Equal(t, extension.Combined("3d", got[i].Text), in)
	}
	assert.Equal(t, 7, f.durable.totalPuts())
}

func TestExtensions_SecondCallServedFromMemory(t *testing.T) {
	f := newFixture(t)
	first := f.svc.Extensions(context.Background(), "3d", extension.Search)
	second := f.svc.Extensions(context.Background(), "3d", extension.Search)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Embedding, second[i].Embedding)
	}
	assert.EqualValues(t, 7, f.llm.calls.Load())
	assert.Equal(t, 1, f.embed.batchCount())
}

func TestExtensions_ConcurrentMissesConverge(t *testing.T) {
	f := newFixture(t)
	f.llm.fn = func(_ context.Context, prompt string) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return `["` + promptCategory(prompt) + ` variant"]`, nil
	}

	const callers = 20
	results := make([][]extension.Entry, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.svc.Extensions(context.Background(), "3d", extension.Search)
		}()
	}
	wg.Wait()

	for i := range callers {
		require.Len(t, results[i], 7)
		for j := range results[i] {
			assert.Equal(t, results[0][j].Text, results[i][j].Text)
		}
	}
	assert.EqualValues(t, 7, f.llm.calls.Load(), "one generation per key")
	assert.Equal(t, 7, f.durable.totalPuts(), "exactly one durable write per key")
}

func TestExtensions_DurableHitSkipsLLM(t *testing.T) {
	f := newFixture(t)
	key := extension.NewKey("3d", category.Logos, extension.Search)
	f.durable.entries[key] = extension.Entry{Key: key, Text: "stored", Embedding: []float32{1, 0}}

	got := f.svc.Extensions(context.Background(), "3d", extension.Search)

	require.Len(t, got, 7)
	assert.Equal(t, "stored", got[1].Text)
	assert.EqualValues(t, 6, f.llm.calls.Load())
	assert.Len(t, f.embed.batches[0], 6)
	_, inMemory := f.cache.Get(key)
	assert.True(t, inMemory, "durable hits are promoted")
}

func TestExtensions_MemoryHitUpdatesLastUsed(t *testing.T) {
	f := newFixture(t)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return t0 }
	f.cache.now = func() time.Time { return t0 }
	f.svc.Extensions(context.Background(), "3d", extension.Search)
	key := extension.NewKey("3d", category.Logos, extension.Search)

	// within the throttle window only memory moves
	t1 := t0.Add(time.Minute)
	f.cache.now = func() time.Time { return t1 }
	f.svc.now = func() time.Time { return t1 }
	f.svc.Extensions(context.Background(), "3d", extension.Search)
	e, _ := f.cache.Get(key)
	assert.Equal(t, t1, e.LastUsedAt)
	assert.Equal(t, t0, e.CreatedAt)
	_, touched := f.durable.touched(key)
	assert.False(t, touched)

	t2 := t1.Add(2 * time.Hour)
	f.cache.now = func() time.Time { return t2 }
	f.svc.now = func() time.Time { return t2 }
	f.svc.Extensions(context.Background(), "3d", extension.Search)
	at, touched := f.durable.touched(key)
	require.True(t, touched)
	assert.Equal(t, t2, at)
	assert.Equal(t, t2, f.durable.entries[key].LastUsedAt)
	assert.Contains(t, f.tasks.names, "extension_touch")
	assert.Equal(t, 7, f.durable.totalPuts(), "touch is not a new write of the entry")
}

func TestExtensions_DurableHitRefreshesLastUsed(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	key := extension.NewKey("3d", category.Logos, extension.Search)
	f.durable.entries[key] = extension.Entry{
		Key: key, Text: "stored", Embedding: []float32{1, 0}, LastUsedAt: now.Add(-48 * time.Hour),
	}

	f.svc.Extensions(context.Background(), "3d", extension.Search)

	e, ok := f.cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, now, e.LastUsedAt)
	at, touched := f.durable.touched(key)
	require.True(t, touched)
	assert.Equal(t, now, at)
}

func TestExtensions_DurableLookupsRunConcurrently(t *testing.T) {
	f := newFixture(t)
	slow := &slowDurable{memDurable: f.durable, delay: 50 * time.Millisecond}
	f.svc = New(f.cache, slow, f.llm, f.embed, f.tasks, time.Second)

	start := time.Now()
	got := f.svc.Extensions(context.Background(), "3d", extension.Search)

	require.Len(t, got, 7)
	assert.Less(t, time.Since(start), 7*slow.delay, "lookups must not run one after another")
	assert.EqualValues(t, 7, slow.gets.Load())
}

func TestExtensions_DurableErrorIsAMiss(t *testing.T) {
	f := newFixture(t)
	f.durable.getErr = errors.New("redis down")

	got := f.svc.Extensions(context.Background(), "3d", extension.Search)
	assert.Len(t, got, 7)
}

func TestExtensions_FailedCategoriesAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.llm.fn = func(_ context.Context, prompt string) (string, error) {
		switch promptCategory(prompt) {
		case "logos":
			return "", errors.New("provider error")
		case "graphic":
			return "I cannot help with that.", nil
		}
		return `["ok"]`, nil
	}

	got := f.svc.Extensions(context.Background(), "3d", extension.Search)

	require.Len(t, got, 5)
	for _, e := range got {
		assert.NotEqual(t, category.Logos, e.Key.Category)
		assert.NotEqual(t, category.Graphic, e.Key.Category)
	}
	_, cached := f.cache.Get(extension.NewKey("3d", category.Logos, extension.Search))
	assert.False(t, cached, "failures are not cached")
}

func TestExtensions_LLMTimeout(t *testing.T) {
	f := newFixture(t)
	f.svc = New(f.cache, f.durable, f.llm, f.embed, f.tasks, 20*time.Millisecond)
	f.llm.fn = func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	start := time.Now()
	got := f.svc.Extensions(context.Background(), "3d", extension.Vibe)

	assert.Empty(t, got)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, f.embed.batchCount())
}

func TestExtensions_EmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.embed.err = errors.New("embedding down")

	got := f.svc.Extensions(context.Background(), "3d", extension.Search)

	assert.Empty(t, got)
	assert.Equal(t, 0, f.cache.Len())
	assert.Equal(t, 0, f.durable.totalPuts())
}

func TestExtensions_CallerCancelled(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.llm.fn = func(context.Context, string) (string, error) {
		<-release
		return `["late"]`, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, f.svc.Extensions(ctx, "3d", extension.Search))
	close(release)
}

func TestExpand(t *testing.T) {
	f := newFixture(t)

	e, ok := f.svc.Expand(context.Background(), "Serenity")

	require.True(t, ok)
	assert.Equal(t, extension.NewKey("serenity", category.All, extension.Expand), e.Key)
	assert.Equal(t, "phrase 1", e.Text)
}

func TestIsAbstract(t *testing.T) {
	f := newFixture(t)
	f.llm.fn = func(context.Context, string) (string, error) { return `["abstract"]`, nil }

	assert.True(t, f.svc.IsAbstract(context.Background(), "serenity"))
	assert.True(t, f.svc.IsAbstract(context.Background(), "Serenity"))
	assert.EqualValues(t, 1, f.llm.calls.Load())

	verdict, found, _ := f.durable.Abstractness(context.Background(), "serenity")
	assert.True(t, found)
	assert.True(t, verdict)
}

func TestIsAbstract_FailureIsConcreteAndNotRemembered(t *testing.T) {
	f := newFixture(t)
	f.llm.fn = func(context.Context, string) (string, error) { return "", errors.New("down") }

	assert.False(t, f.svc.IsAbstract(context.Background(), "serenity"))
	assert.False(t, f.svc.IsAbstract(context.Background(), "serenity"))
	assert.EqualValues(t, 2, f.llm.calls.Load())
}

func TestIsAbstract_DurableVerdict(t *testing.T) {
	f := newFixture(t)
	f.durable.abstract["cozy"] = true

	assert.True(t, f.svc.IsAbstract(context.Background(), "cozy"))
	assert.EqualValues(t, 0, f.llm.calls.Load())
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Extensions(ctx, "retro", extension.Vibe)
	require.Equal(t, 7, f.cache.Len())

	n, err := f.svc.Invalidate(ctx, "Retro", extension.Vibe)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 0, f.cache.Len())
	assert.Empty(t, f.durable.entries)

	f.svc.Extensions(ctx, "retro", extension.Vibe)
	assert.EqualValues(t, 14, f.llm.calls.Load(), "regenerated after invalidation")
}
