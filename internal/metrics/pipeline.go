package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Expansion and LLM metrics.
var (
	ExpansionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "expansion_cache_total",
			Help:      "Expansion cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // tier: memory / durable; result: hit / miss
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "embedding_cache_total",
			Help:      "Query embedding cache lookups by result",
		},
		[]string{"result"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "llm_requests_total",
			Help:      "LLM generation requests by purpose and outcome",
		},
		[]string{"purpose", "outcome"}, // outcome: ok / error / timeout / malformed
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM generation duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10, 15},
		},
		[]string{"purpose"},
	)
)

// Search pipeline metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by route and status",
		},
		[]string{"route", "status"},
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_stage_duration_seconds",
			Help:      "Duration of each search pipeline stage",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
		[]string{"stage"},
	)

	SearchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_candidates",
			Help:      "Candidate pool size after retrieval",
			Buckets:   []float64{0, 10, 30, 60, 120, 240, 400, 800},
		},
	)

	BackgroundTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "background_tasks_total",
			Help:      "Fire-and-forget tasks by name and outcome",
		},
		[]string{"task", "outcome"}, // outcome: ok / error / rejected
	)
)

var registerOnce sync.Once

// Register registers the service metrics with the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			ExpansionCacheTotal,
			EmbeddingCacheTotal,
			LLMRequestsTotal,
			LLMRequestDuration,
			SearchRequestsTotal,
			SearchStageDuration,
			SearchCandidates,
			BackgroundTasksTotal,
		)
	})
}
