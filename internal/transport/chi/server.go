package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/logger"
	healthuc "github.com/kailas-cloud/designdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/designdex/internal/usecase/search"
)

// DefaultMaxImageBytes caps POST /search/image bodies.
const DefaultMaxImageBytes = 8 << 20

// Searcher runs the ranking pipeline.
type Searcher interface {
	Search(ctx context.Context, q *query.Query) (*searchuc.Response, error)
	SearchImage(ctx context.Context, image []byte, cat category.Category, limit int) (*searchuc.Response, error)
}

// ClickRecorder records result clicks.
type ClickRecorder interface {
	Click(ctx context.Context, requestID, imageID string) error
}

// ExpansionAdmin invalidates cached extensions.
type ExpansionAdmin interface {
	Invalidate(ctx context.Context, term string, mode extension.Mode) (int, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the query API.
type Server struct {
	search        Searcher
	clicks        ClickRecorder
	expansions    ExpansionAdmin
	health        HealthChecker
	logger        *zap.Logger
	maxImageBytes int64
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. maxImageBytes <= 0 uses DefaultMaxImageBytes.
func NewServer(
	search Searcher,
	clicks ClickRecorder,
	expansions ExpansionAdmin,
	health HealthChecker,
	maxImageBytes int64,
	logger *zap.Logger,
) *Server {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	s := &Server{
		search:        search,
		clicks:        clicks,
		expansions:    expansions,
		health:        health,
		logger:        logger,
		maxImageBytes: maxImageBytes,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusServiceUnavailable, CodeSearchUnavailable),
		sentinelHandler(context.DeadlineExceeded, http.StatusServiceUnavailable, CodeSearchUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
	}
	return s
}

// PostSearch handles POST /search.
func (s *Server) PostSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := query.New(query.Params{
		Text:        req.Query,
		Category:    category.Category(deref(req.Category)),
		Source:      query.Source(deref(req.Source)),
		MainConcept: deref(req.MainConcept),
		Additions:   req.Additions,
		Sliders:     req.Sliders,
		Debug:       deref(req.Debug),
		Limit:       deref(req.Limit),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	s.runSearch(w, r, &q)
}

// GetSearch handles GET /search.
func (s *Server) GetSearch(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	values := r.URL.Query()
	for _, b := range []struct {
		name     string
		required bool
		dest     any
	}{
		{"query", true, &params.Query},
		{"category", false, &params.Category},
		{"source", false, &params.Source},
		{"debug", false, &params.Debug},
		{"limit", false, &params.Limit},
	} {
		if err := runtime.BindQueryParameter("form", true, b.required, b.name, values, b.dest); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("Invalid format for parameter %s", b.name))
			return
		}
	}

	q, err := query.New(query.Params{
		Text:     params.Query,
		Category: category.Category(deref(params.Category)),
		Source:   query.Source(deref(params.Source)),
		Debug:    deref(params.Debug),
		Limit:    deref(params.Limit),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	s.runSearch(w, r, &q)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, q *query.Query) {
	resp, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse(resp, q.Debug()))
}

// SearchImage handles POST /search/image.
func (s *Server) SearchImage(w http.ResponseWriter, r *http.Request) {
	var params ImageSearchParams
	values := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "category", values, &params.Category); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter category")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", values, &params.Limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter limit")
		return
	}

	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest,
				fmt.Sprintf("image exceeds %d bytes", s.maxImageBytes))
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.search.SearchImage(r.Context(), image,
		category.Category(deref(params.Category)), deref(params.Limit))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse(resp, false))
}

// RecordClick handles POST /clicks.
func (s *Server) RecordClick(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.clicks.Click(r.Context(), req.RequestID, req.ImageID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateExpansions handles DELETE /expansions.
func (s *Server) InvalidateExpansions(w http.ResponseWriter, r *http.Request) {
	var term, source string
	values := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "term", values, &term); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter term")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "source", values, &source); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter source")
		return
	}

	if extension.NormalizeTerm(term) == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "term is required")
		return
	}
	if source == "" {
		source = string(query.Search)
	}
	mode := extension.Mode(source)
	if mode != extension.Search && mode != extension.Vibe {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "source must be \"search\" or \"vibe\"")
		return
	}

	removed, err := s.expansions.Invalidate(r.Context(), term, mode)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("Expansions invalidated",
		zap.String("term", term), zap.String("source", source), zap.Int("removed", removed))
	writeJSON(w, http.StatusOK, InvalidateResponse{Term: term, Source: source, Removed: removed})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchResponse(resp *searchuc.Response, debug bool) SearchResponse {
	items := make([]SearchResultItem, len(resp.Results))
	for i := range resp.Results {
		res := &resp.Results[i]
		items[i] = SearchResultItem{
			ID:           res.ID,
			CollectionID: res.CollectionID,
			Category:     string(res.Category),
			Score:        res.FinalScore,
			BaseScore:    res.BaseScore,
		}
		if debug {
			items[i].Debug = res.Features()
			items[i].Debug["similarity"] = res.Similarity
		}
	}
	return SearchResponse{
		Results:   items,
		Total:     len(items),
		Route:     string(resp.Route),
		RequestID: resp.RequestID.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message. Validation errors carry
// their detail; everything else is reduced to its sentinel.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidQuery) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrSearchUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrNotImplemented,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrSearchUnavailable.Error()
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
