package candidate

import (
	"sort"

	"github.com/kailas-cloud/designdex/internal/domain/category"
)

// HubStats describe how often an image shows up across unrelated queries.
type HubStats struct {
	HubCount            int
	HubScore            float64
	AvgSimilarity       float64
	AvgSimilarityMargin float64
}

// Popularity holds impression and click counts within the lookback window.
type Popularity struct {
	ShowCount  int
	ClickCount int
	// CTR is rounded to 4 decimals.
	CTR float64
}

// Candidate is an image returned by the vector index.
type Candidate struct {
	ID           string
	CollectionID string
	Category     category.Category
	Similarity   float64
	Vector       []float32
	// Hub is nil when stats were never computed.
	Hub *HubStats
	// Popularity is nil when the image has no impressions in the window.
	Popularity *Popularity
}

// Scored is a candidate with its score breakdown.
type Scored struct {
	Candidate

	BaseScore         float64
	AdjustedBaseScore float64
	HubMultiplier     float64
	PopularityPenalty float64
	SliderAdjusted    bool
	// MainSimilarity and AdditionSimilarity are set for composite queries only.
	MainSimilarity     float64
	AdditionSimilarity float64
	FinalScore         float64
}

// Features returns the score breakdown used for impression logging and debug output.
func (s *Scored) Features() map[string]float64 {
	f := map[string]float64{
		"base_score":          s.BaseScore,
		"adjusted_base_score": s.AdjustedBaseScore,
		"hub_multiplier":      s.HubMultiplier,
		"popularity_penalty":  s.PopularityPenalty,
		"final_score":         s.FinalScore,
	}
	if s.SliderAdjusted {
		f["slider_adjusted"] = 1
	}
	if s.MainSimilarity != 0 || s.AdditionSimilarity != 0 {
		f["main_similarity"] = s.MainSimilarity
		f["addition_similarity"] = s.AdditionSimilarity
	}
	if s.Hub != nil {
		f["hub_score"] = s.Hub.HubScore
		f["hub_margin"] = s.Hub.AvgSimilarityMargin
	}
	if s.Popularity != nil {
		f["show_count"] = float64(s.Popularity.ShowCount)
		f["ctr"] = s.Popularity.CTR
	}
	return f
}

// SortBySimilarity orders candidates by similarity desc, then id asc.
func SortBySimilarity(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Similarity != c[j].Similarity {
			return c[i].Similarity > c[j].Similarity
		}
		return c[i].ID < c[j].ID
	})
}
