package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

// equilibriumSet builds a symmetric four-outcome market whose probabilities
// sum to exactly 1 (each cell priced at 0.25).
func equilibriumSet() domain.PoolSet {
	set := make(domain.PoolSet, 4)
	for _, c := range domain.CellOrder {
		set[c] = domain.Pool{YesReserve: 300, NoReserve: 100}
	}
	return set
}

func TestSimulateBuy_RaisesTargetLowersOthers(t *testing.T) {
	set := equilibriumSet()
	res, err := SimulateBuy(set, domain.CellYesYes, domain.SideYes, 10)
	require.NoError(t, err)

	assert.Equal(t, domain.ConvergenceConverged, res.Status)
	assert.Greater(t, res.Shares, 0.0)
	assert.InDelta(t, 10.0, res.Cost, 1e-12)

	assert.Greater(t, Probability(res.Pools[domain.CellYesYes]), 0.25)
	for _, c := range []domain.Cell{domain.CellYesNo, domain.CellNoYes, domain.CellNoNo} {
		assert.Less(t, Probability(res.Pools[c]), 0.25)
	}
	assert.InDelta(t, 1.0, SumProbabilities(res.Pools), 1e-3)
}

func TestSimulateBuy_ConvergesAcrossBudgets(t *testing.T) {
	for _, budget := range []float64{0.5, 5, 25, 80} {
		res, err := SimulateBuy(equilibriumSet(), domain.CellNoNo, domain.SideYes, budget)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, SumProbabilities(res.Pools), 1e-3,
			"budget %.1f left probability sum at %.6f", budget, SumProbabilities(res.Pools))
	}
}

func TestSimulateBuy_SkewedMarket(t *testing.T) {
	// An asymmetric but consistent market: probabilities 0.4/0.3/0.2/0.1.
	set := domain.PoolSet{
		domain.CellYesYes: {YesReserve: 150, NoReserve: 100}, // p=0.4
		domain.CellYesNo:  {YesReserve: 233.333333, NoReserve: 100},
		domain.CellNoYes:  {YesReserve: 400, NoReserve: 100},
		domain.CellNoNo:   {YesReserve: 900, NoReserve: 100},
	}
	require.InDelta(t, 1.0, SumProbabilities(set), 1e-6)

	res, err := SimulateBuy(set, domain.CellNoYes, domain.SideYes, 15)
	require.NoError(t, err)
	assert.Greater(t, Probability(res.Pools[domain.CellNoYes]), 0.2)
	assert.InDelta(t, 1.0, SumProbabilities(res.Pools), 1e-3)
}

func TestSimulateBuy_ZeroBudget(t *testing.T) {
	set := equilibriumSet()
	res, err := SimulateBuy(set, domain.CellYesYes, domain.SideYes, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Shares)
	assert.Equal(t, domain.ConvergenceConverged, res.Status)
	assert.Equal(t, set, res.Pools)
}

func TestSimulateBuy_NoSideFallsBack(t *testing.T) {
	set := equilibriumSet()
	res, err := SimulateBuy(set, domain.CellYesYes, domain.SideNo, 10)
	require.NoError(t, err)

	// The reverse auto-arbitrage direction is not modeled; the result must
	// match plain single-pool pricing and be flagged as degraded.
	assert.Equal(t, domain.ConvergenceFellBack, res.Status)
	assert.InDelta(t, SharesForCost(set[domain.CellYesYes], 10, domain.SideNo), res.Shares, 1e-12)
	// Only the target pool moved.
	assert.Equal(t, set[domain.CellYesNo], res.Pools[domain.CellYesNo])
}

func TestSimulateBuy_DoesNotMutateInput(t *testing.T) {
	set := equilibriumSet()
	before := set.Clone()
	_, err := SimulateBuy(set, domain.CellYesYes, domain.SideYes, 20)
	require.NoError(t, err)
	assert.Equal(t, before, set)
}

func TestSimulateBuy_InvalidSet(t *testing.T) {
	set := equilibriumSet()
	set[domain.CellNoNo] = domain.Pool{YesReserve: 0, NoReserve: 100}
	_, err := SimulateBuy(set, domain.CellYesYes, domain.SideYes, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidPool)

	delete(set, domain.CellNoNo)
	_, err = SimulateBuy(set, domain.CellYesYes, domain.SideYes, 10)
	assert.ErrorIs(t, err, domain.ErrIncompleteMarket)
}

func TestCostForSharesMulti_RoundTrip(t *testing.T) {
	set := equilibriumSet()
	res, err := CostForSharesMulti(set, domain.CellYesYes, domain.SideYes, 10)
	require.NoError(t, err)
	require.False(t, math.IsInf(res.Cost, 1))
	assert.InEpsilon(t, 10.0, res.Shares, 1e-4)

	sim, err := SimulateBuy(set, domain.CellYesYes, domain.SideYes, res.Cost)
	require.NoError(t, err)
	assert.InEpsilon(t, 10.0, sim.Shares, 1e-3)
}

func TestCostForSharesMulti_ZeroShares(t *testing.T) {
	set := equilibriumSet()
	res, err := CostForSharesMulti(set, domain.CellYesNo, domain.SideYes, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Cost)
	assert.Equal(t, domain.ConvergenceConverged, res.Status)
}

func TestCostForSharesMulti_NoSideFallsBack(t *testing.T) {
	set := equilibriumSet()
	res, err := CostForSharesMulti(set, domain.CellYesYes, domain.SideNo, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.ConvergenceFellBack, res.Status)
	assert.InDelta(t, CostForShares(set[domain.CellYesYes], 10, domain.SideNo), res.Cost, 1e-12)
}
