package impression

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/designdex/internal/domain/impression"
)

// store is the consumer interface for impression writes (ISP).
type store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

const (
	insertQuerySQL = `INSERT INTO impression_queries (request_id, query, route, category, vector, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (request_id) DO NOTHING`

	insertClickSQL = `INSERT INTO clicks (request_id, image_id) VALUES ($1, $2)`
)

var impressionColumns = []string{
	"request_id", "image_id", "position", "base_score", "final_score", "features", "created_at",
}

// Repo persists impressions and clicks.
type Repo struct {
	store store
}

// New creates an impression repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save writes the query row, then bulk-copies the shown items.
func (r *Repo) Save(ctx context.Context, rec *impression.Record) error {
	if _, err := r.store.Exec(ctx, insertQuerySQL,
		rec.RequestID, rec.Query, rec.Route, rec.Category, rec.Vector, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert impression query: %w", err)
	}
	if len(rec.Items) == 0 {
		return nil
	}

	src := pgx.CopyFromSlice(len(rec.Items), func(i int) ([]any, error) {
		it := rec.Items[i]
		return []any{
			rec.RequestID, it.ImageID, it.Position, it.BaseScore, it.FinalScore, it.Features, rec.CreatedAt,
		}, nil
	})
	n, err := r.store.CopyFrom(ctx, pgx.Identifier{"impressions"}, impressionColumns, src)
	if err != nil {
		return fmt.Errorf("copy impressions: %w", err)
	}
	if int(n) != len(rec.Items) {
		return fmt.Errorf("copy impressions: wrote %d of %d rows", n, len(rec.Items))
	}
	return nil
}

// RecordClick stores a click.
func (r *Repo) RecordClick(ctx context.Context, c impression.Click) error {
	if _, err := r.store.Exec(ctx, insertClickSQL, c.RequestID, c.ImageID); err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}
