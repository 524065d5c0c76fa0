package concept

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/designdex/internal/domain/concept"
)

// store is the consumer interface for concept reads (ISP).
type store interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const loadSQL = `SELECT id, label, embedding, opposite_ids FROM concepts ORDER BY id`

// Repo serves a periodically refreshed snapshot of the concept store.
type Repo struct {
	store   store
	refresh time.Duration
	logger  *zap.Logger
	now     func() time.Time

	group    singleflight.Group
	mu       sync.RWMutex
	set      *concept.Set
	loadedAt time.Time
}

// New creates a concept repository. The snapshot is reloaded when older than refresh.
func New(s store, refresh time.Duration, logger *zap.Logger) *Repo {
	return &Repo{store: s, refresh: refresh, logger: logger, now: time.Now}
}

// Concepts returns the current snapshot, loading it on first use. A failed
// reload keeps serving the previous snapshot.
func (r *Repo) Concepts(ctx context.Context) (*concept.Set, error) {
	r.mu.RLock()
	set, loadedAt := r.set, r.loadedAt
	r.mu.RUnlock()

	if set != nil && r.now().Sub(loadedAt) < r.refresh {
		return set, nil
	}

	v, err, _ := r.group.Do("load", func() (any, error) {
		return r.load(ctx)
	})
	if err != nil {
		if set != nil {
			r.logger.Warn("Concept reload failed, serving stale snapshot", zap.Error(err))
			return set, nil
		}
		return nil, err
	}
	return v.(*concept.Set), nil
}

func (r *Repo) load(ctx context.Context) (*concept.Set, error) {
	rows, err := r.store.Query(ctx, loadSQL)
	if err != nil {
		return nil, fmt.Errorf("query concepts: %w", err)
	}
	defer rows.Close()

	var list []concept.Concept
	for rows.Next() {
		var c concept.Concept
		if err := rows.Scan(&c.ID, &c.Label, &c.Embedding, &c.OppositeIDs); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concepts: %w", err)
	}

	set := concept.NewSet(list)
	r.mu.Lock()
	r.set, r.loadedAt = set, r.now()
	r.mu.Unlock()

	r.logger.Debug("Concepts loaded", zap.Int("count", set.Len()))
	return set, nil
}
