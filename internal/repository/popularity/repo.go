package popularity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
)

// maxLookbackDays caps the window regardless of configuration.
const maxLookbackDays = 90

// store is the consumer interface for popularity reads (ISP).
type store interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// shows counts impressions at the top positions; clicks are joined per image.
const popularitySQL = `
WITH shows AS (
	SELECT image_id, COUNT(*) AS show_count
	FROM impressions
	WHERE image_id = ANY($1)
	  AND position < $2
	  AND created_at >= now() - make_interval(days => $3)
	GROUP BY image_id
), hits AS (
	SELECT image_id, COUNT(*) AS click_count
	FROM clicks
	WHERE image_id = ANY($1)
	  AND created_at >= now() - make_interval(days => $3)
	GROUP BY image_id
)
SELECT s.image_id, s.show_count, COALESCE(h.click_count, 0)
FROM shows s
LEFT JOIN hits h USING (image_id)`

// Repo aggregates impression and click counts.
type Repo struct {
	store        store
	lookbackDays int
}

// New creates a popularity repository. lookbackDays is clamped to [1, 90].
func New(s store, lookbackDays int) *Repo {
	return &Repo{store: s, lookbackDays: min(max(lookbackDays, 1), maxLookbackDays)}
}

// Popularity returns stats for ids shown at a position below topN within the
// lookback window. Images never shown there are absent.
func (r *Repo) Popularity(ctx context.Context, ids []string, topN int) (map[string]*candidate.Popularity, error) {
	out := make(map[string]*candidate.Popularity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.store.Query(ctx, popularitySQL, ids, topN, r.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("query popularity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id            string
			shows, clicks int64
		)
		if err := rows.Scan(&id, &shows, &clicks); err != nil {
			return nil, fmt.Errorf("scan popularity: %w", err)
		}
		p := &candidate.Popularity{ShowCount: int(shows), ClickCount: int(clicks)}
		if shows > 0 {
			p.CTR = domain.Round(float64(clicks)/float64(shows), 4)
		}
		out[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate popularity: %w", err)
	}
	return out, nil
}
