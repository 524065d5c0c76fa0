// Package search runs the query pipeline: retrieval, signals, rerank,
// balancing and impression logging.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/logger"
	"github.com/kailas-cloud/designdex/internal/metrics"
	"github.com/kailas-cloud/designdex/internal/usecase/analyzer"
	"github.com/kailas-cloud/designdex/internal/usecase/balance"
	"github.com/kailas-cloud/designdex/internal/usecase/impression"
	"github.com/kailas-cloud/designdex/internal/usecase/rerank"
	"github.com/kailas-cloud/designdex/internal/usecase/retrieval"
)

// DefaultRequestTimeout bounds one search end to end.
const DefaultRequestTimeout = 25 * time.Second

// Config holds the pipeline budgets.
type Config struct {
	RequestTimeout     time.Duration
	BalancePerCategory int
}

// Response is a ranked result list.
type Response struct {
	RequestID uuid.UUID
	Route     analyzer.Route
	Results   []candidate.Scored
}

// Service runs searches.
type Service struct {
	retriever   Retriever
	signals     SignalCollector
	impressions ImpressionRecorder
	images      ImageEmbedder
	cfg         Config
	newID       func() uuid.UUID
}

// New creates a search service. images may be nil, which disables image search.
func New(
	r Retriever, s SignalCollector, imp ImpressionRecorder, images ImageEmbedder, cfg Config,
) *Service {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.BalancePerCategory <= 0 {
		cfg.BalancePerCategory = balance.DefaultPerCategory
	}
	return &Service{retriever: r, signals: s, impressions: imp, images: images, cfg: cfg, newID: uuid.New}
}

// Search ranks the catalog against q.
func (s *Service) Search(ctx context.Context, q *query.Query) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	reqID := s.newID()
	ctx = logger.With(ctx, zap.String("search_id", reqID.String()))

	start := time.Now()
	res, err := s.retriever.Retrieve(ctx, q)
	observe("retrieval", start)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("unknown", status(err)).Inc()
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	results := s.rank(ctx, q, res, q.Category(), q.Limit())
	s.impressions.Record(ctx, impression.Meta{
		RequestID: reqID,
		Query:     q.Text(),
		Route:     string(res.Plan.Route),
		Category:  string(q.Category()),
		Vector:    res.Vector,
	}, results)

	metrics.SearchRequestsTotal.WithLabelValues(string(res.Plan.Route), "ok").Inc()
	logger.FromContext(ctx).Debug("Search complete",
		zap.String("route", string(res.Plan.Route)),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return &Response{RequestID: reqID, Route: res.Plan.Route, Results: results}, nil
}

// SearchImage ranks the catalog against an uploaded image.
func (s *Service) SearchImage(ctx context.Context, image []byte, cat category.Category, limit int) (*Response, error) {
	if s.images == nil {
		return nil, fmt.Errorf("image search: %w", domain.ErrNotImplemented)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image body is required", domain.ErrInvalidQuery)
	}
	if cat == "" {
		cat = category.All
	}
	if !cat.IsValid() {
		return nil, fmt.Errorf("%w: invalid category: %q", domain.ErrInvalidQuery, cat)
	}
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	limit = min(limit, query.MaxLimit)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	reqID := s.newID()
	ctx = logger.With(ctx, zap.String("search_id", reqID.String()))

	start := time.Now()
	emb, err := s.images.EmbedImage(ctx, image)
	observe("embed_image", start)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(analyzer.Image), "error").Inc()
		return nil, fmt.Errorf("%w: embed image: %w", domain.ErrSearchUnavailable, err)
	}

	start = time.Now()
	res, err := s.retriever.RetrieveVector(ctx, emb.Embedding, cat)
	observe("retrieval", start)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(analyzer.Image), status(err)).Inc()
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	results := s.rank(ctx, nil, res, cat, limit)
	s.impressions.Record(ctx, impression.Meta{
		RequestID: reqID,
		Route:     string(analyzer.Image),
		Category:  string(cat),
		Vector:    res.Vector,
	}, results)

	metrics.SearchRequestsTotal.WithLabelValues(string(analyzer.Image), "ok").Inc()
	return &Response{RequestID: reqID, Route: analyzer.Image, Results: results}, nil
}

// rank runs signals, rerank and balancing over a retrieved pool.
func (s *Service) rank(
	ctx context.Context, q *query.Query, res *retrieval.Result, cat category.Category, limit int,
) []candidate.Scored {
	metrics.SearchCandidates.Observe(float64(len(res.Candidates)))

	start := time.Now()
	sliders := s.signals.Collect(ctx, q, res.Candidates)
	observe("signals", start)

	start = time.Now()
	ranked := rerank.Rerank(rerank.Input{
		Candidates:       res.Candidates,
		ExtensionsActive: res.ExtensionsActive(),
		Sliders:          sliders,
		AdditionVectors:  res.AdditionVectors,
	})
	observe("rerank", start)

	if cat.IsAll() && res.ExtensionsActive() {
		start = time.Now()
		ranked = balance.Balance(ranked, limit, s.cfg.BalancePerCategory)
		observe("balance", start)
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func observe(stage string, start time.Time) {
	metrics.SearchStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func status(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrSearchUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
