package hubstats

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/logger"
)

// KeyPrefix namespaces hub statistics hashes.
var KeyPrefix = domain.KeyPrefix + "hub:"

// store is the consumer interface for hub statistics (ISP).
type store interface {
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo reads hub statistics computed out-of-band.
type Repo struct {
	store store
}

// New creates a hub statistics repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// HubStats loads statistics for ids in one round-trip. Images whose stats were
// never computed are absent from the result, and so are images with a
// malformed hash.
func (r *Repo) HubStats(ctx context.Context, ids []string) (map[string]*candidate.HubStats, error) {
	if len(ids) == 0 {
		return map[string]*candidate.HubStats{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = KeyPrefix + id
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load hub stats: %w", err)
	}

	out := make(map[string]*candidate.HubStats, len(ids))
	for i, m := range rows {
		if i >= len(ids) || len(m) == 0 {
			continue
		}
		hs, err := parse(m)
		if err != nil {
			logger.FromContext(ctx).Warn("Skipping malformed hub stats",
				zap.String("image_id", ids[i]), zap.Error(err))
			continue
		}
		out[ids[i]] = hs
	}
	return out, nil
}

func parse(m map[string]string) (*candidate.HubStats, error) {
	var hs candidate.HubStats
	var err error
	if v, ok := m["hub_count"]; ok {
		if hs.HubCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("hub_count: %w", err)
		}
	}
	floats := []struct {
		name string
		dst  *float64
	}{
		{"hub_score", &hs.HubScore},
		{"avg_similarity", &hs.AvgSimilarity},
		{"avg_similarity_margin", &hs.AvgSimilarityMargin},
	}
	for _, f := range floats {
		v, ok := m[f.name]
		if !ok {
			continue
		}
		if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if math.IsNaN(*f.dst) || math.IsInf(*f.dst, 0) {
			return nil, fmt.Errorf("%s: not finite: %q", f.name, v)
		}
	}
	return &hs, nil
}
