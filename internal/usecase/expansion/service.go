package expansion

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/designdex/internal/db"
	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/logger"
	"github.com/kailas-cloud/designdex/internal/metrics"
)

// DefaultLLMTimeout bounds a single generation call.
const DefaultLLMTimeout = 10 * time.Second

// DefaultTouchInterval is the minimum gap between two durable last-used
// updates of the same entry.
const DefaultTouchInterval = time.Hour

// LLM call purposes, used as metric labels.
const (
	purposeClassify = "classify"
)

// Service resolves extensions through the in-process tier, the durable tier
// and finally the LLM.
type Service struct {
	cache   *Cache
	durable Durable
	llm     Generator
	embed   domain.Embedder
	tasks   Scheduler
	timeout time.Duration
	// touchEvery throttles durable last-used writes.
	touchEvery time.Duration
	group      singleflight.Group
	now     func() time.Time
}

// New creates an expansion service. durable may be nil; llmTimeout <= 0 uses
// DefaultLLMTimeout.
func New(
	cache *Cache, durable Durable, llm Generator, embed domain.Embedder,
	tasks Scheduler, llmTimeout time.Duration,
) *Service {
	if llmTimeout <= 0 {
		llmTimeout = DefaultLLMTimeout
	}
	return &Service{
		cache:   cache,
		durable: durable,
		llm:     llm,
		embed:   embed,
		tasks:   tasks,
		timeout:    llmTimeout,
		touchEvery: DefaultTouchInterval,
		now:        time.Now,
	}
}

// Extensions returns one entry per category, in the fixed category order,
// for every category that has or can get an extension of term.
// Categories whose generation failed are left out.
func (s *Service) Extensions(ctx context.Context, term string, mode extension.Mode) []extension.Entry {
	cats := category.Ordered()
	keys := make([]extension.Key, len(cats))
	for i, c := range cats {
		keys[i] = extension.NewKey(term, c, mode)
	}
	return s.resolve(ctx, keys)
}

// Expand returns the query-wide expansion of an abstract term.
func (s *Service) Expand(ctx context.Context, term string) (extension.Entry, bool) {
	out := s.resolve(ctx, []extension.Key{extension.NewKey(term, category.All, extension.Expand)})
	if len(out) == 0 {
		return extension.Entry{}, false
	}
	return out[0], true
}

func (s *Service) resolve(ctx context.Context, keys []extension.Key) []extension.Entry {
	if out, ok := s.allFromMemory(ctx, keys); ok {
		return out
	}

	flight := string(keys[0].Mode) + ":" + keys[0].Term
	ch := s.group.DoChan(flight, func() (any, error) {
		// Shared by every waiter, so it must outlive the first caller.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.timeout)
		defer cancel()
		return s.fill(fctx, keys), nil
	})

	select {
	case res := <-ch:
		return res.Val.([]extension.Entry)
	case <-ctx.Done():
		logger.FromContext(ctx).Warn("Extension lookup abandoned", zap.String("term", keys[0].Term), zap.Error(ctx.Err()))
		return nil
	}
}

func (s *Service) allFromMemory(ctx context.Context, keys []extension.Key) ([]extension.Entry, bool) {
	for _, k := range keys {
		if _, ok := s.cache.Get(k); !ok {
			return nil, false
		}
	}
	out := make([]extension.Entry, 0, len(keys))
	var stale []extension.Key
	for _, k := range keys {
		e, prev, ok := s.cache.Use(k)
		if !ok {
			// invalidated in between
			return nil, false
		}
		if e.LastUsedAt.Sub(prev) >= s.touchEvery {
			stale = append(stale, k)
		}
		out = append(out, e)
	}
	for range keys {
		metrics.ExpansionCacheTotal.WithLabelValues("memory", "hit").Inc()
	}
	s.touch(ctx, stale)
	return out, true
}

func (s *Service) fill(ctx context.Context, keys []extension.Key) []extension.Entry {
	found := make([]*extension.Entry, len(keys))
	var (
		lookup  []int
		missing []int
		stale   []extension.Key
	)

	for i, k := range keys {
		if e, prev, ok := s.cache.Use(k); ok {
			metrics.ExpansionCacheTotal.WithLabelValues("memory", "hit").Inc()
			if e.LastUsedAt.Sub(prev) >= s.touchEvery {
				stale = append(stale, k)
			}
			found[i] = &e
			continue
		}
		metrics.ExpansionCacheTotal.WithLabelValues("memory", "miss").Inc()
		lookup = append(lookup, i)
	}

	stored := make([]*extension.Entry, len(keys))
	var g errgroup.Group
	for _, i := range lookup {
		g.Go(func() error {
			stored[i] = s.fromDurable(ctx, keys[i])
			return nil
		})
	}
	_ = g.Wait()

	now := s.now()
	for _, i := range lookup {
		e := stored[i]
		if e == nil {
			missing = append(missing, i)
			continue
		}
		if now.Sub(e.LastUsedAt) >= s.touchEvery {
			stale = append(stale, keys[i])
		}
		e.LastUsedAt = now
		canonical, _ := s.cache.Upsert(*e)
		found[i] = &canonical
	}
	s.touch(ctx, stale)

	if len(missing) > 0 {
		s.generate(ctx, keys, missing, found)
	}

	out := make([]extension.Entry, 0, len(keys))
	for _, e := range found {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func (s *Service) fromDurable(ctx context.Context, k extension.Key) *extension.Entry {
	if s.durable == nil {
		return nil
	}
	e, err := s.durable.Get(ctx, k)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			logger.FromContext(ctx).Warn("Durable extension lookup failed", zap.String("key", k.String()), zap.Error(err))
		}
		metrics.ExpansionCacheTotal.WithLabelValues("durable", "miss").Inc()
		return nil
	}
	if len(e.Embedding) == 0 {
		metrics.ExpansionCacheTotal.WithLabelValues("durable", "miss").Inc()
		return nil
	}
	metrics.ExpansionCacheTotal.WithLabelValues("durable", "hit").Inc()
	return e
}

// generate asks the LLM for every missing key concurrently, then embeds all
// answers in one batch.
func (s *Service) generate(ctx context.Context, keys []extension.Key, missing []int, found []*extension.Entry) {
	texts := make([]string, len(missing))
	var g errgroup.Group
	for j, i := range missing {
		g.Go(func() error {
			texts[j] = s.ask(ctx, keys[i])
			return nil
		})
	}
	_ = g.Wait()

	var (
		idx    []int
		exts   []string
		inputs []string
	)
	for j, i := range missing {
		if texts[j] == "" {
			continue
		}
		idx = append(idx, i)
		exts = append(exts, texts[j])
		inputs = append(inputs, extension.Combined(keys[i].Term, texts[j]))
	}
	if len(inputs) == 0 {
		return
	}

	res, err := domain.BatchEmbed(ctx, s.embed, inputs)
	if err == nil && len(res.Embeddings) != len(inputs) {
		err = errors.New("embedding count mismatch")
	}
	if err != nil {
		logger.FromContext(ctx).Warn("Extension embedding failed", zap.Int("count", len(inputs)), zap.Error(err))
		return
	}

	now := s.now()
	for j, i := range idx {
		canonical, created := s.cache.Upsert(extension.Entry{
			Key:        keys[i],
			Text:       exts[j],
			Embedding:  domain.Normalize(res.Embeddings[j]),
			CreatedAt:  now,
			LastUsedAt: now,
		})
		found[i] = &canonical
		if created {
			s.persist(ctx, canonical)
		}
	}
}

func (s *Service) persist(ctx context.Context, e extension.Entry) {
	if s.durable == nil || s.tasks == nil {
		return
	}
	s.tasks.Go(ctx, "extension_persist", func(ctx context.Context) error {
		return s.durable.Put(ctx, &e)
	})
}

// touch records the use of keys in the durable tier in the background.
func (s *Service) touch(ctx context.Context, keys []extension.Key) {
	if len(keys) == 0 || s.durable == nil || s.tasks == nil {
		return
	}
	at := s.now()
	s.tasks.Go(ctx, "extension_touch", func(ctx context.Context) error {
		var errs []error
		for _, k := range keys {
			if err := s.durable.Touch(ctx, k, at); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// ask returns the extension text for k, or "" when generation failed.
func (s *Service) ask(ctx context.Context, k extension.Key) string {
	prompt := expandPrompt(k.Term)
	if k.Mode != extension.Expand {
		prompt = categoryPrompt(k.Term, k.Category, k.Mode)
	}
	p, ok := s.call(ctx, string(k.Mode), prompt).(Parsed)
	if !ok {
		return ""
	}
	return joinItems(p.Items)
}

// call runs one bounded LLM request and parses the answer.
func (s *Service) call(ctx context.Context, purpose, prompt string) Outcome {
	log := logger.FromContext(ctx)
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.llm.Generate(cctx, prompt)
	metrics.LLMRequestDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "error"
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.LLMRequestsTotal.WithLabelValues(purpose, outcome).Inc()
		log.Warn("LLM request failed", zap.String("purpose", purpose), zap.String("outcome", outcome), zap.Error(err))
		return Failure{Reason: err.Error()}
	}

	out := Parse(raw)
	if f, ok := out.(Failure); ok {
		metrics.LLMRequestsTotal.WithLabelValues(purpose, "malformed").Inc()
		log.Warn("Unusable LLM output", zap.String("purpose", purpose), zap.String("reason", f.Reason),
			zap.String("raw", truncate(raw, 200)))
		return out
	}
	metrics.LLMRequestsTotal.WithLabelValues(purpose, "ok").Inc()
	return out
}

// IsAbstract reports whether term names a mood rather than something visible.
// Any classifier failure counts as concrete and is not remembered.
func (s *Service) IsAbstract(ctx context.Context, term string) bool {
	if a, ok := s.cache.Abstractness(term); ok {
		return a
	}
	if s.durable != nil {
		a, found, err := s.durable.Abstractness(ctx, term)
		if err != nil {
			logger.FromContext(ctx).Warn("Durable classifier lookup failed", zap.Error(err))
		}
		if found {
			s.cache.SetAbstractness(term, a)
			return a
		}
	}

	v, err, _ := s.group.Do("abstract:"+extension.NormalizeTerm(term), func() (any, error) {
		p, ok := s.call(ctx, purposeClassify, classifyPrompt(term)).(Parsed)
		if !ok {
			return false, errors.New("classifier failed")
		}
		abstract := strings.Contains(strings.ToLower(p.Items[0]), "abstract")
		s.cache.SetAbstractness(term, abstract)
		if s.durable != nil && s.tasks != nil {
			s.tasks.Go(ctx, "classifier_persist", func(ctx context.Context) error {
				return s.durable.PutAbstractness(ctx, term, abstract)
			})
		}
		return abstract, nil
	})
	if err != nil {
		return false
	}
	return v.(bool)
}

// Invalidate drops every cached extension of term in mode from both tiers.
func (s *Service) Invalidate(ctx context.Context, term string, mode extension.Mode) (int, error) {
	n := s.cache.DeleteTerm(term, mode)
	if s.durable != nil {
		if err := s.durable.DeleteTerm(ctx, term, mode); err != nil {
			return n, err
		}
	}
	logger.FromContext(ctx).Info("Extensions invalidated",
		zap.String("term", extension.NormalizeTerm(term)), zap.String("mode", string(mode)), zap.Int("memory_entries", n))
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
