package search

import (
	"context"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/concept"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/usecase/impression"
	"github.com/kailas-cloud/designdex/internal/usecase/retrieval"
)

// Retriever builds the candidate pool.
type Retriever interface {
	Retrieve(ctx context.Context, q *query.Query) (*retrieval.Result, error)
	RetrieveVector(ctx context.Context, vector []float32, cat category.Category) (*retrieval.Result, error)
}

// SignalCollector attaches hub and popularity stats and resolves sliders.
type SignalCollector interface {
	Collect(ctx context.Context, q *query.Query, cands []candidate.Candidate) []concept.Slider
}

// ImpressionRecorder logs what a search returned.
type ImpressionRecorder interface {
	Record(ctx context.Context, m impression.Meta, results []candidate.Scored)
}

// ImageEmbedder vectorizes an uploaded image.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}
