package retrieval

import (
	"context"

	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
	"github.com/kailas-cloud/designdex/internal/domain/extension"
	"github.com/kailas-cloud/designdex/internal/domain/query"
	"github.com/kailas-cloud/designdex/internal/usecase/analyzer"
)

// Index runs nearest-neighbour queries over the catalog.
type Index interface {
	Nearest(ctx context.Context, vector []float32, cat category.Category, k int) ([]candidate.Candidate, error)
}

// Expander resolves cached or generated extensions.
type Expander interface {
	Extensions(ctx context.Context, term string, mode extension.Mode) []extension.Entry
	Expand(ctx context.Context, term string) (extension.Entry, bool)
}

// Router picks the retrieval path for a text.
type Router interface {
	Analyze(ctx context.Context, text string, source query.Source) analyzer.Plan
}
