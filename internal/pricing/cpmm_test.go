package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

func TestProbability(t *testing.T) {
	assert.InDelta(t, 0.5, Probability(domain.Pool{YesReserve: 100, NoReserve: 100}), 1e-12)
	assert.InDelta(t, 0.25, Probability(domain.Pool{YesReserve: 300, NoReserve: 100}), 1e-12)
	assert.InDelta(t, 0.75, Probability(domain.Pool{YesReserve: 100, NoReserve: 300}), 1e-12)
}

func TestSharesForCost_ReferenceComputation(t *testing.T) {
	pool := domain.Pool{YesReserve: 100, NoReserve: 100}

	// Buying YES with 10: NO reserve rises to 110, YES reserve drops to
	// 10000/110, shares = 10 + (100 - 10000/110) = 19.0909...
	got := SharesForCost(pool, 10, domain.SideYes)
	assert.InDelta(t, 19.0909, got, 1e-4)

	// Symmetric pool: the NO side prices identically.
	assert.InDelta(t, got, SharesForCost(pool, 10, domain.SideNo), 1e-12)
}

func TestSharesForCost_NonPositiveCost(t *testing.T) {
	pool := domain.Pool{YesReserve: 50, NoReserve: 80}
	assert.Equal(t, 0.0, SharesForCost(pool, 0, domain.SideYes))
	assert.Equal(t, 0.0, SharesForCost(pool, -5, domain.SideNo))
}

func TestCostForShares_NonPositiveShares(t *testing.T) {
	pool := domain.Pool{YesReserve: 50, NoReserve: 80}
	assert.Equal(t, 0.0, CostForShares(pool, 0, domain.SideYes))
	assert.Equal(t, 0.0, CostForShares(pool, -1, domain.SideNo))
}

func TestCostForShares_InvalidPool(t *testing.T) {
	assert.True(t, math.IsInf(CostForShares(domain.Pool{YesReserve: 0, NoReserve: 100}, 5, domain.SideYes), 1))
	assert.True(t, math.IsInf(CostForShares(domain.Pool{YesReserve: 100, NoReserve: -1}, 5, domain.SideNo), 1))
}

func TestPoolAfterTrade_PreservesInvariant(t *testing.T) {
	pools := []domain.Pool{
		{YesReserve: 100, NoReserve: 100},
		{YesReserve: 300, NoReserve: 100},
		{YesReserve: 12.5, NoReserve: 875.25},
	}
	costs := []float64{0.01, 1, 10, 250}

	for _, pool := range pools {
		k := pool.YesReserve * pool.NoReserve
		for _, cost := range costs {
			for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
				after := PoolAfterTrade(pool, cost, side)
				require.True(t, after.Valid())
				assert.InEpsilon(t, k, after.YesReserve*after.NoReserve, 1e-9)
			}
		}
	}
}

func TestCostForShares_RoundTrip(t *testing.T) {
	pools := []domain.Pool{
		{YesReserve: 100, NoReserve: 100},
		{YesReserve: 300, NoReserve: 100},
		{YesReserve: 40, NoReserve: 900},
	}
	shareCounts := []float64{0.5, 1, 10, 75}

	for _, pool := range pools {
		for _, shares := range shareCounts {
			for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
				cost := CostForShares(pool, shares, side)
				require.False(t, math.IsInf(cost, 1))
				require.Greater(t, cost, 0.0)

				back := SharesForCost(pool, cost, side)
				assert.InEpsilon(t, shares, back, 1e-6)
			}
		}
	}
}

func TestSharesForCost_RoundTrip(t *testing.T) {
	pool := domain.Pool{YesReserve: 120, NoReserve: 95}
	for _, cost := range []float64{0.25, 3, 42} {
		shares := SharesForCost(pool, cost, domain.SideYes)
		back := CostForShares(pool, shares, domain.SideYes)
		assert.InEpsilon(t, cost, back, 1e-6)
	}
}

func TestSharesForCost_StrictlyIncreasing(t *testing.T) {
	pool := domain.Pool{YesReserve: 200, NoReserve: 150}
	prev := 0.0
	for cost := 1.0; cost <= 100; cost += 1 {
		shares := SharesForCost(pool, cost, domain.SideYes)
		assert.Greater(t, shares, prev)
		prev = shares
	}
}

func TestCostForShares_StrictlyIncreasing(t *testing.T) {
	pool := domain.Pool{YesReserve: 200, NoReserve: 150}
	prev := 0.0
	for shares := 1.0; shares <= 100; shares += 1 {
		cost := CostForShares(pool, shares, domain.SideNo)
		assert.Greater(t, cost, prev)
		prev = cost
	}
}

func TestSharesForCost_AlwaysExceedsCostTimesProbability(t *testing.T) {
	// Shares bought are worth at most 1 each, so a buyer always receives
	// more shares than currency spent times the price would suggest, and
	// strictly more shares than cost when probability < 1.
	pool := domain.Pool{YesReserve: 300, NoReserve: 100}
	shares := SharesForCost(pool, 10, domain.SideYes)
	assert.Greater(t, shares, 10.0)
}
