package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

// correlatedSet builds a market with joint probabilities 0.35/0.25/0.15/0.25
// (positively correlated events, pA=0.6, pB=0.5).
func correlatedSet() domain.PoolSet {
	return domain.PoolSet{
		domain.CellYesYes: poolForProbability(0.35),
		domain.CellYesNo:  poolForProbability(0.25),
		domain.CellNoYes:  poolForProbability(0.15),
		domain.CellNoNo:   poolForProbability(0.25),
	}
}

func TestSolveWeights_DoublyNeutral(t *testing.T) {
	probs := [4]float64{0.35, 0.25, 0.15, 0.25}
	w, degenerate := SolveWeights(probs)
	require.False(t, degenerate)

	p1, p2, p3, p4 := probs[0], probs[1], probs[2], probs[3]
	eA := (p1*w[0] + p2*w[1]) / (p1 + p2)
	eNotA := (p3*w[2] + p4*w[3]) / (p3 + p4)
	eB := (p1*w[0] + p3*w[2]) / (p1 + p3)
	eNotB := (p2*w[1] + p4*w[3]) / (p2 + p4)

	assert.InDelta(t, eA, eNotA, 1e-6)
	assert.InDelta(t, eB, eNotB, 1e-6)
}

func TestSolveWeights_DegenerateFallback(t *testing.T) {
	// Independent events at pA=pB=0.5: every joint probability is 0.25 and
	// the determinant vanishes. The documented fallback applies instead of
	// a division by near-zero.
	w, degenerate := SolveWeights([4]float64{0.25, 0.25, 0.25, 0.25})
	assert.True(t, degenerate)
	assert.Equal(t, [4]float64{1, 0, 0, 1}, w)
}

func TestScaleWeights_LongOnlyAndCapped(t *testing.T) {
	raw := [4]float64{1, 7, 9.3333, 0}

	long := ScaleWeights(raw, domain.CorrelationLong, 10)
	max := 0.0
	for i, v := range long {
		assert.GreaterOrEqual(t, v, 0.0, "component %d must be long-only", i)
		if v > max {
			max = v
		}
	}
	assert.InDelta(t, 10.0, max, 1e-9)
	// Long correlation loads the diagonal.
	assert.Greater(t, long[0]+long[3], long[1]+long[2])

	short := ScaleWeights(raw, domain.CorrelationShort, 10)
	assert.Greater(t, short[1]+short[2], short[0]+short[3])
}

func TestCorrelationPlan(t *testing.T) {
	p := New(0, testLogger())
	plan, err := p.Build(domain.PlanRequest{
		Kind:      domain.PlanCorrelation,
		MarketID:  "m1",
		Pools:     correlatedSet(),
		Direction: domain.CorrelationLong,
		MaxShares: 10,
	})
	require.NoError(t, err)

	require.True(t, plan.Valid)
	// One raw weight is zero after shifting, so only three legs trade.
	assert.Len(t, plan.Legs, 3)
	assert.Greater(t, plan.TotalCost, 0.0)

	// Legs were ordered cheapest-first at quoted prices.
	for i := 1; i < len(plan.Legs); i++ {
		assert.LessOrEqual(t, plan.Legs[i-1].Cost, plan.Legs[i].Cost+1e-6)
	}

	// At this trade size the price impact is modest, so the acquired
	// position stays close to neutral.
	assert.GreaterOrEqual(t, plan.NeutralityScore, 0.0)
	assert.Less(t, plan.NeutralityScore, 0.15)
}

func TestCorrelationPlan_DegenerateMarket(t *testing.T) {
	p := New(0, testLogger())
	plan, err := p.Build(domain.PlanRequest{
		Kind:      domain.PlanCorrelation,
		Pools:     equilibriumSet(),
		Direction: domain.CorrelationLong,
		MaxShares: 10,
	})
	require.NoError(t, err)

	require.True(t, plan.Valid)
	assert.NotEmpty(t, plan.Warnings)
	// Trivial diagonal weights: two legs, on the agreeing cells.
	require.Len(t, plan.Legs, 2)
	cells := map[domain.Cell]bool{plan.Legs[0].Cell: true, plan.Legs[1].Cell: true}
	assert.True(t, cells[domain.CellYesYes])
	assert.True(t, cells[domain.CellNoNo])
	// A perfectly diagonal position in a symmetric market is fully neutral.
	assert.InDelta(t, 0.0, plan.NeutralityScore, 1e-3)
}
