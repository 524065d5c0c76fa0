package rerank

import (
	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/concept"
)

// Slider breakpoints.
const (
	sliderNeutral  = 0.5
	sliderHighSpan = 0.49 // 1.0 down to 0.51
	sliderInvStart = 0.25 // opposite starts inverting above this
	sliderInvSpan  = 0.24 // fully inverted at 0.49
)

// applySliders blends final scores along each concept axis in turn.
func applySliders(scored []candidate.Scored, sliders []concept.Slider) {
	for _, s := range sliders {
		applySlider(scored, s)
	}
}

func applySlider(scored []candidate.Scored, s concept.Slider) {
	pos := s.Position
	if pos >= 1 || pos == sliderNeutral || len(scored) == 0 {
		return
	}

	scores := make([]float64, len(scored))
	for i := range scored {
		scores[i] = scored[i].FinalScore
	}
	inverted := invert(scores)

	var target []float64
	var w float64
	switch {
	case pos > sliderNeutral:
		w = min((1-pos)/sliderHighSpan, 1)
		target = inverted
	case s.Opposite == nil:
		w = (sliderNeutral - pos) / sliderNeutral
		target = inverted
	default:
		w = (sliderNeutral - pos) / sliderNeutral
		opp := make([]float64, len(scored))
		for i := range scored {
			opp[i] = domain.Cosine(scored[i].Vector, s.Opposite)
		}
		invW := clamp((pos-sliderInvStart)/sliderInvSpan, 0, 1)
		oppInv := invert(opp)
		target = make([]float64, len(opp))
		for i := range opp {
			target[i] = blend(opp[i], oppInv[i], invW)
		}
	}

	for i := range scored {
		scored[i].FinalScore = blend(scores[i], target[i], w)
		scored[i].SliderAdjusted = true
	}
}

// invert maps each score to (max+min)-score, reversing the order within the same range.
func invert(scores []float64) []float64 {
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo, hi = min(lo, s), max(hi, s)
	}
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = hi + lo - s
	}
	return out
}

func blend(from, to, w float64) float64 {
	if w == 1 {
		return to
	}
	return from*(1-w) + to*w
}

func clamp(x, lo, hi float64) float64 {
	return max(lo, min(hi, x))
}
