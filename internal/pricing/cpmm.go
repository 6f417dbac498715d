// Package pricing implements the constant-product market maker used by the
// venue's joint-probability markets: closed-form binary pool pricing plus a
// simulator for the venue's multi-outcome auto-arbitrage rule, which keeps
// the four outcome probabilities summing to 1 after any trade.
//
// All quantities are non-negative float64. Financial infeasibility (an
// unaffordable share count, a trade that would empty a reserve) is signalled
// with 0 / +Inf sentinels so callers can propagate "infeasible" through
// ordinary comparisons; errors are reserved for structurally invalid input
// such as a non-positive reserve.
package pricing

import (
	"math"

	"github.com/evand/conditional-markets/internal/domain"
)

// Probability returns the pool's implied probability of its YES outcome:
// noReserve / (yesReserve + noReserve). Price is skewed by the opposite-side
// reserve; equal reserves price YES at 0.5.
func Probability(pool domain.Pool) float64 {
	total := pool.YesReserve + pool.NoReserve
	if total <= 0 {
		return 0
	}
	return pool.NoReserve / total
}

// SumProbabilities returns the sum of the four YES probabilities. At venue
// equilibrium this is 1.
func SumProbabilities(set domain.PoolSet) float64 {
	var sum float64
	for _, c := range domain.CellOrder {
		sum += Probability(set[c])
	}
	return sum
}

// SharesForCost returns the shares acquired by spending cost on side.
// Buying adds cost to the opposite reserve, recomputes the bought side from
// the constant product k, and pays out cost plus the bought reserve's drop:
//
//	shares = cost + (oldSide - k/(opposite+cost))
//
// Returns 0 for cost <= 0 or an invalid pool.
func SharesForCost(pool domain.Pool, cost float64, side domain.Side) float64 {
	if cost <= 0 || !pool.Valid() {
		return 0
	}
	k := pool.YesReserve * pool.NoReserve
	if side == domain.SideYes {
		newYes := k / (pool.NoReserve + cost)
		return cost + (pool.YesReserve - newYes)
	}
	newNo := k / (pool.YesReserve + cost)
	return cost + (pool.NoReserve - newNo)
}

// CostForShares returns the cost of acquiring exactly shares of side: the
// positive root of the constant-product quadratic,
//
//	cost = (s - y - n + sqrt((y+n-s)^2 + 4*s*other)) / 2
//
// where other is the reserve of the side not being bought. Returns 0 for
// shares <= 0 and +Inf when the request is infeasible (invalid pool,
// negative discriminant, or a trade that would drive a reserve to <= 0).
func CostForShares(pool domain.Pool, shares float64, side domain.Side) float64 {
	if shares <= 0 {
		return 0
	}
	if !pool.Valid() {
		return math.Inf(1)
	}
	y, n := pool.YesReserve, pool.NoReserve
	other := n
	bought := y
	if side == domain.SideNo {
		other = y
		bought = n
	}
	disc := (y+n-shares)*(y+n-shares) + 4*shares*other
	if disc < 0 {
		return math.Inf(1)
	}
	cost := (shares - y - n + math.Sqrt(disc)) / 2
	if cost < 0 || math.IsNaN(cost) {
		return math.Inf(1)
	}
	// The bought-side reserve drops by shares-cost; it must stay positive.
	if shares-cost >= bought {
		return math.Inf(1)
	}
	return cost
}

// PoolAfterTrade returns the pool state after a cost-funded buy of side,
// preserving the constant product. cost <= 0 leaves the pool unchanged.
func PoolAfterTrade(pool domain.Pool, cost float64, side domain.Side) domain.Pool {
	if cost <= 0 || !pool.Valid() {
		return pool
	}
	k := pool.YesReserve * pool.NoReserve
	if side == domain.SideYes {
		newNo := pool.NoReserve + cost
		return domain.Pool{YesReserve: k / newNo, NoReserve: newNo}
	}
	newYes := pool.YesReserve + cost
	return domain.Pool{YesReserve: newYes, NoReserve: k / newYes}
}
