package rerank

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/designdex/internal/domain"
	"github.com/kailas-cloud/designdex/internal/domain/candidate"
	"github.com/kailas-cloud/designdex/internal/domain/concept"
)

// pool builds candidates with distinct collections and 2-d vectors at
// increasing angles, so similarity to (1,0) falls and to (0,1) rises.
func pool(n int) []candidate.Candidate {
	out := make([]candidate.Candidate, n)
	for i := range out {
		x := float32(n - i)
		y := float32(i + 1)
		v := []float32{x, y}
		out[i] = candidate.Candidate{
			ID:           fmt.Sprintf("img-%02d", i),
			CollectionID: fmt.Sprintf("col-%02d", i),
			Similarity:   domain.Cosine(v, []float32{1, 0}),
			Vector:       v,
		}
	}
	return out
}

func ids(s []candidate.Scored) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.ID
	}
	return out
}

func TestRerank_Deterministic(t *testing.T) {
	in := Input{
		Candidates: pool(30),
		Sliders:    []concept.Slider{{Label: "minimal", Position: 0.3, Opposite: []float32{0.2, 1}}},
	}
	in.Candidates[3].Hub = &candidate.HubStats{HubScore: 0.4, AvgSimilarityMargin: 0.02}
	in.Candidates[5].Popularity = &candidate.Popularity{ShowCount: 80, CTR: 0.01}

	first := Rerank(in)
	for range 10 {
		assert.Equal(t, first, Rerank(in))
	}
}

func TestRerank_TieBreakByID(t *testing.T) {
	in := Input{Candidates: []candidate.Candidate{
		{ID: "c", CollectionID: "3", Similarity: 0.5},
		{ID: "a", CollectionID: "1", Similarity: 0.5},
		{ID: "b", CollectionID: "2", Similarity: 0.50004}, // rounds to 0.5
	}}
	assert.Equal(t, []string{"a", "b", "c"}, ids(Rerank(in)))
}

func TestRerank_DedupesByCollection(t *testing.T) {
	in := Input{Candidates: []candidate.Candidate{
		{ID: "a", CollectionID: "x", Similarity: 0.4},
		{ID: "b", CollectionID: "x", Similarity: 0.9},
		{ID: "c", CollectionID: "y", Similarity: 0.7},
		{ID: "d", Similarity: 0.3},
		{ID: "e", Similarity: 0.2},
	}}
	assert.Equal(t, []string{"b", "c", "d", "e"}, ids(Rerank(in)))
}

func TestRerank_ScoreBreakdown(t *testing.T) {
	in := Input{Candidates: []candidate.Candidate{{
		ID: "a", CollectionID: "x", Similarity: 0.20,
		Hub:        &candidate.HubStats{HubScore: 0.9, AvgSimilarityMargin: 0.05},
		Popularity: &candidate.Popularity{ShowCount: 50, CTR: 0},
	}}}

	got := Rerank(in)[0]
	assert.InDelta(t, 0.80, got.HubMultiplier, 1e-12)
	assert.Equal(t, 0.16, got.AdjustedBaseScore)
	assert.InDelta(t, 0.05, got.PopularityPenalty, 1e-12)
	assert.Equal(t, 0.11, got.FinalScore)
	assert.Equal(t, 0.20, got.BaseScore)

	in.ExtensionsActive = true
	got = Rerank(in)[0]
	assert.Equal(t, 0.19, got.AdjustedBaseScore, "halved hub effect floors at 0.95")
	assert.InDelta(t, 0.005, got.PopularityPenalty, 1e-12)
	assert.Equal(t, 0.185, got.FinalScore)
}

func TestRerank_FinalScoresNonIncreasing(t *testing.T) {
	in := Input{Candidates: pool(25)}
	for i := range in.Candidates {
		if i%3 == 0 {
			in.Candidates[i].Hub = &candidate.HubStats{HubScore: 0.6, AvgSimilarityMargin: 0.03}
		}
	}
	got := Rerank(in)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].FinalScore, got[i].FinalScore)
	}
}

func TestSlider_OneIsUnchanged(t *testing.T) {
	plain := Rerank(Input{Candidates: pool(12)})
	slid := Rerank(Input{
		Candidates: pool(12),
		Sliders:    []concept.Slider{{Label: "minimal", Position: 1.0, Opposite: []float32{0, 1}}},
	})
	assert.Equal(t, ids(plain), ids(slid))
	assert.False(t, slid[0].SliderAdjusted)
}

func TestSlider_HalfIsNoOp(t *testing.T) {
	plain := Rerank(Input{Candidates: pool(12)})
	slid := Rerank(Input{
		Candidates: pool(12),
		Sliders:    []concept.Slider{{Label: "minimal", Position: 0.5, Opposite: []float32{0, 1}}},
	})
	assert.Equal(t, plain, slid)
}

func TestSlider_ZeroEqualsOppositeRanking(t *testing.T) {
	opposite := []float32{0.3, 1}
	cands := pool(15)

	got := Rerank(Input{
		Candidates: cands,
		Sliders:    []concept.Slider{{Label: "minimal", Position: 0, Opposite: opposite}},
	})

	type pair struct {
		id  string
		sim float64
	}
	want := make([]pair, len(cands))
	for i, c := range cands {
		want[i] = pair{c.ID, domain.Round(domain.Cosine(c.Vector, opposite), 4)}
	}
	sort.Slice(want, func(i, j int) bool {
		if want[i].sim != want[j].sim {
			return want[i].sim > want[j].sim
		}
		return want[i].id < want[j].id
	})
	wantIDs := make([]string, len(want))
	for i, p := range want {
		wantIDs[i] = p.id
	}

	assert.Equal(t, wantIDs, ids(got))
	assert.True(t, got[0].SliderAdjusted)
}

func TestSlider_HighSideInvertsAtLowerBound(t *testing.T) {
	plain := ids(Rerank(Input{Candidates: pool(10)}))
	got := ids(Rerank(Input{
		Candidates: pool(10),
		Sliders:    []concept.Slider{{Label: "minimal", Position: 0.51}},
	}))

	reversed := make([]string, len(plain))
	for i, id := range plain {
		reversed[len(plain)-1-i] = id
	}
	assert.Equal(t, reversed, got)
}

func TestSlider_NoOppositeFallsBackToInvertedOwnScore(t *testing.T) {
	plain := ids(Rerank(Input{Candidates: pool(10)}))
	got := ids(Rerank(Input{
		Candidates: pool(10),
		Sliders:    []concept.Slider{{Label: "playful", Position: 0}},
	}))
	assert.Equal(t, plain[0], got[len(got)-1])
	assert.Equal(t, plain[len(plain)-1], got[0])
}

func TestSlider_SequentialApplication(t *testing.T) {
	// Two full inversions cancel out.
	plain := ids(Rerank(Input{Candidates: pool(10)}))
	got := ids(Rerank(Input{
		Candidates: pool(10),
		Sliders: []concept.Slider{
			{Label: "a", Position: 0.51},
			{Label: "b", Position: 0.51},
		},
	}))
	assert.Equal(t, plain, got)
}

func TestComposite_PreservesTopWhenAdditionAgrees(t *testing.T) {
	cands := pool(20)
	standalone := Rerank(Input{Candidates: cands})
	top := standalone[0]

	// The addition points at the standalone winner.
	composite := Rerank(Input{Candidates: pool(20), AdditionVectors: [][]float32{top.Vector}})

	assert.Equal(t, top.ID, composite[0].ID)
	assert.InDelta(t, 1/(1+1.0), composite[0].FinalScore, 1e-4, "rank 1 on both signals")
	assert.InDelta(t, composite[0].FinalScore, composite[0].BaseScore, 1e-4)
}

// Neighbouring composite ranks stay apart at 4 decimals while
// 1/((1+r)(2+r)) exceeds 0.0001, i.e. up to combined rank 97.
func TestComposite_RoundingKeepsRanksApartWithinResolution(t *testing.T) {
	const n = 97
	cands := make([]candidate.Candidate, n)
	for i := range cands {
		theta := float64(i) * 0.01
		v := []float32{float32(math.Cos(theta)), float32(math.Sin(theta))}
		cands[i] = candidate.Candidate{
			// reversed ids: an id tie-break would invert the order
			ID:         fmt.Sprintf("img-%03d", n-i),
			Similarity: domain.Cosine(v, []float32{1, 0}),
			Vector:     v,
		}
	}

	got := Rerank(Input{Candidates: cands, AdditionVectors: [][]float32{{1, 0}}})

	require.Len(t, got, n)
	for i := range got {
		assert.Equal(t, fmt.Sprintf("img-%03d", n-i), got[i].ID)
		if i > 0 {
			assert.Greater(t, got[i-1].FinalScore, got[i].FinalScore, "rank %d", i+1)
		}
	}
}

func TestComposite_AdditionBreaksNearTies(t *testing.T) {
	in := Input{
		Candidates: []candidate.Candidate{
			{ID: "a", CollectionID: "1", Similarity: 0.80, Vector: []float32{1, 0}},
			{ID: "b", CollectionID: "2", Similarity: 0.79, Vector: []float32{0, 1}},
			{ID: "c", CollectionID: "3", Similarity: 0.10, Vector: []float32{0, 1}},
		},
		AdditionVectors: [][]float32{{0, 1}},
	}
	got := Rerank(in)
	// a: 1*0.9 + 3*0.1 = 1.2; b: 2*0.9 + 1*0.1 = 1.9; c: 3*0.9 + 2*0.1 = 2.9
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, domain.Round(1/2.2, 4), got[0].FinalScore)
	assert.Equal(t, domain.Round(1/2.9, 4), got[1].FinalScore)
}
