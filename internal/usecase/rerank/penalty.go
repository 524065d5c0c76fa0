package rerank

import (
	"math"

	"github.com/kailas-cloud/designdex/internal/domain/candidate"
)

// Popularity penalty constants.
const (
	popMinShows  = 5
	popCTRTarget = 0.1
	popMaxShows  = 100.0
	popMax       = 0.1
	// popExtensionScale shrinks the penalty when extension similarity dominates.
	popExtensionScale = 0.1
)

// Hub penalty constants. hubMaxPct and hubFloor are contract values.
const (
	hubMinScore        = 0.05
	hubMarginWeight    = 4.8
	hubFrequencyWeight = 0.09
	hubMaxPct          = 0.20
	hubFloor           = 0.5
	hubExtensionFloor  = 0.95
)

// PopularityPenalty penalizes images shown often but rarely clicked.
// Missing stats, fewer than 5 shows or a CTR of at least 0.1 mean no penalty.
func PopularityPenalty(p *candidate.Popularity) float64 {
	if p == nil || p.ShowCount < popMinShows || p.CTR >= popCTRTarget {
		return 0
	}
	exposure := math.Min(float64(p.ShowCount)/popMaxShows, 1)
	shortfall := (popCTRTarget - p.CTR) / popCTRTarget
	return math.Min(exposure*shortfall*popMax, popMax)
}

// HubMultiplier scales base down for over-exposed images. The result is in
// [0.5, 1], or [0.95, 1] when a category extension drove the query.
func HubMultiplier(h *candidate.HubStats, base float64, categoryExtension bool) float64 {
	if h == nil || h.HubScore <= hubMinScore {
		return 1
	}

	marginPenalty := math.Max(0, h.AvgSimilarityMargin*hubMarginWeight)
	freq := h.HubScore * hubFrequencyWeight
	if h.AvgSimilarityMargin < 0 {
		freq *= 0.5
	}
	abs := marginPenalty + freq

	pct := hubMaxPct
	if base > 0 {
		pct = math.Min(abs/base, hubMaxPct)
	}
	m := math.Max(hubFloor, 1-pct)

	if categoryExtension {
		m = math.Max(hubExtensionFloor, 1-(1-m)*0.5)
	}
	return m
}
