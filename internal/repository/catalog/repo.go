package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/designdex/internal/db"
	dbredis "github.com/kailas-cloud/designdex/internal/db/redis"
	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/category"
)

// Key layout of the image catalog.
var (
	IndexName   = domain.KeyPrefix + "images:idx"
	ImagePrefix = domain.KeyPrefix + "image:"
)

// Hash field names.
const (
	FieldCollectionID = "collection_id"
	FieldCategory     = "category"
	FieldVector       = "vector"
)

// store is the consumer interface for the vector index (ISP).
type store interface {
	db.Searcher
	db.IndexManager
}

// IndexConfig controls the HNSW parameters used when the index is created.
type IndexConfig struct {
	Dimensions  int
	M           int
	EFConstruct int
}

// Repo runs nearest-neighbour queries over the image catalog.
type Repo struct {
	store store
	cfg   IndexConfig
}

// New creates a catalog repository.
func New(s store, cfg IndexConfig) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// EnsureIndex creates the catalog index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(IndexName).
		Prefix(ImagePrefix).
		Tag(FieldCollectionID).
		Tag(FieldCategory).
		VectorHNSW(FieldVector, r.cfg.Dimensions, db.DistanceCosine, r.cfg.M, r.cfg.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Nearest returns up to k images closest to vector, restricted to cat unless
// it is All. Results are ordered by similarity desc, then id asc.
func (r *Repo) Nearest(
	ctx context.Context, vector []float32, cat category.Category, k int,
) ([]candidate.Candidate, error) {
	if r.cfg.Dimensions > 0 && len(vector) != r.cfg.Dimensions {
		return nil, fmt.Errorf("%w: got %d, index has %d",
			domain.ErrVectorDimMismatch, len(vector), r.cfg.Dimensions)
	}
	q := &db.KNNQuery{
		IndexName:     IndexName,
		Vector:        vector,
		K:             k,
		ReturnFields:  []string{FieldCollectionID, FieldCategory},
		IncludeVector: true,
	}
	if !cat.IsAll() {
		q.Filters = []db.TagFilter{{Field: FieldCategory, Value: string(cat)}}
	}

	res, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	out := make([]candidate.Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, candidate.Candidate{
			ID:           strings.TrimPrefix(e.Key, ImagePrefix),
			CollectionID: e.Fields[FieldCollectionID],
			Category:     category.Category(e.Fields[FieldCategory]),
			Similarity:   e.Score,
			Vector:       dbredis.BytesToVector(e.Fields[FieldVector]),
		})
	}
	candidate.SortBySimilarity(out)
	return out, nil
}
