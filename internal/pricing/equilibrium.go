package pricing

import (
	"math"

	"github.com/evand/conditional-markets/internal/domain"
)

const (
	// outcomeCount is fixed: a joint market is always the four conjunctions
	// of two binary events.
	outcomeCount = 4

	// sumTolerance is the acceptable distance of the post-trade probability
	// sum from 1.
	sumTolerance = 1e-4

	// shareTolerance is the relative tolerance for cost-for-shares searches.
	shareTolerance = 1e-6

	// maxEquilibriumIters and maxCostIters cap the bisection loops so both
	// searches terminate regardless of input pathology.
	maxEquilibriumIters = 60
	maxCostIters        = 50

	// maxExpandSteps caps the geometric upper-bound expansion when
	// bracketing a cost search.
	maxExpandSteps = 32
)

// SimulateBuy reproduces the venue's auto-arbitrage mechanism for a YES buy
// in one outcome of a four-outcome market: the venue spends part of the
// budget buying a matched number m of NO shares in each of the other three
// outcomes, redeems the resulting complete sets (m NO across the three
// others is fungible with m target YES plus m*(n-2) cash), and spends
// whatever remains as a direct constant-product buy in the target. m is the
// single free parameter and is chosen by bisection over [0, 2*budget] so
// that the four post-trade probabilities sum to 1.
//
// The search is best-effort: it runs at most maxEquilibriumIters iterations,
// keeps the best candidate seen, and falls back to plain single-pool pricing
// (flagged ConvergenceFellBack) when no candidate is feasible at all. It
// never fails to return a result for financially valid input.
//
// A NO-side buy degrades to plain single-pool pricing: the venue's reverse
// auto-arbitrage direction is not modeled, a known asymmetry carried over
// from the venue client rather than guessed at.
func SimulateBuy(set domain.PoolSet, target domain.Cell, side domain.Side, budget float64) (domain.TradeResult, error) {
	if err := set.Validate(); err != nil {
		return domain.TradeResult{}, err
	}
	if !target.Valid() {
		return domain.TradeResult{}, domain.ErrInvalidCell
	}
	if budget <= 0 {
		return domain.TradeResult{Status: domain.ConvergenceConverged, Pools: set.Clone()}, nil
	}
	if side == domain.SideNo {
		return singlePoolBuy(set, target, side, budget, domain.ConvergenceFellBack), nil
	}

	best := evalNoShares(set, target, budget, 0)
	bestDiff := math.Abs(best.sumP - 1)
	status := domain.ConvergenceFellBack
	if best.feasible && bestDiff <= sumTolerance {
		status = domain.ConvergenceConverged
	}

	lo, hi := 0.0, 2*budget
	for i := 0; i < maxEquilibriumIters && status != domain.ConvergenceConverged; i++ {
		mid := (lo + hi) / 2
		cand := evalNoShares(set, target, budget, mid)
		if !cand.feasible {
			// m too large to afford: shrink toward zero.
			hi = mid
			continue
		}
		if diff := math.Abs(cand.sumP - 1); diff < bestDiff || !best.feasible {
			best, bestDiff = cand, diff
		}
		if bestDiff <= sumTolerance {
			status = domain.ConvergenceConverged
			break
		}
		if cand.sumP > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}

	if !best.feasible {
		return singlePoolBuy(set, target, side, budget, domain.ConvergenceFellBack), nil
	}
	return domain.TradeResult{
		Shares: best.shares,
		Cost:   budget,
		Status: status,
		Pools:  best.pools,
	}, nil
}

// CostForSharesMulti inverts SimulateBuy: the spend that yields the given
// share count under full auto-arbitrage. The upper bound is expanded
// geometrically until the simulated yield meets the target, then bisected
// for at most maxCostIters iterations. Like SimulateBuy it always returns
// some result, degrading to the plain single-pool closed form when the
// search cannot bracket the target.
func CostForSharesMulti(set domain.PoolSet, target domain.Cell, side domain.Side, shares float64) (domain.TradeResult, error) {
	if err := set.Validate(); err != nil {
		return domain.TradeResult{}, err
	}
	if !target.Valid() {
		return domain.TradeResult{}, domain.ErrInvalidCell
	}
	if shares <= 0 {
		return domain.TradeResult{Status: domain.ConvergenceConverged, Pools: set.Clone()}, nil
	}
	if side == domain.SideNo {
		return singlePoolCost(set, target, side, shares), nil
	}

	hi := math.Max(shares, 1)
	var hiRes domain.TradeResult
	bracketed := false
	for i := 0; i < maxExpandSteps; i++ {
		res, err := SimulateBuy(set, target, side, hi)
		if err != nil {
			return domain.TradeResult{}, err
		}
		if res.Shares >= shares {
			hiRes = res
			bracketed = true
			break
		}
		hi *= 2
	}
	if !bracketed {
		return singlePoolCost(set, target, side, shares), nil
	}

	lo := 0.0
	best, bestCost := hiRes, hi
	status := domain.ConvergenceFellBack
	for i := 0; i < maxCostIters; i++ {
		mid := (lo + hi) / 2
		res, err := SimulateBuy(set, target, side, mid)
		if err != nil {
			return domain.TradeResult{}, err
		}
		if res.Shares >= shares {
			hi, best, bestCost = mid, res, mid
		} else {
			lo = mid
		}
		if math.Abs(res.Shares-shares) <= shareTolerance*math.Max(shares, 1) {
			best, bestCost = res, mid
			status = domain.ConvergenceConverged
			break
		}
	}

	return domain.TradeResult{
		Shares: best.Shares,
		Cost:   bestCost,
		Status: worstStatus(status, best.Status),
		Pools:  best.Pools,
	}, nil
}

// equilibriumCandidate is one evaluated point of the bisection over the
// per-other-outcome NO share count.
type equilibriumCandidate struct {
	shares   float64
	pools    domain.PoolSet
	sumP     float64
	feasible bool
}

// evalNoShares simulates the venue's three-step trade for a fixed NO share
// count m per other outcome: buy m NO in each of the three other pools,
// redeem the complete sets for m*(outcomeCount-2) cash plus m target YES,
// then spend the remaining budget directly in the target pool.
func evalNoShares(set domain.PoolSet, target domain.Cell, budget, m float64) equilibriumCandidate {
	pools := set.Clone()
	var noCost float64
	for _, c := range domain.CellOrder {
		if c == target {
			continue
		}
		cost := CostForShares(pools[c], m, domain.SideNo)
		if math.IsInf(cost, 1) || math.IsNaN(cost) {
			return equilibriumCandidate{}
		}
		pools[c] = PoolAfterTrade(pools[c], cost, domain.SideNo)
		noCost += cost
	}

	redeemed := m * (outcomeCount - 2)
	remaining := budget - noCost + redeemed
	if remaining < 0 {
		return equilibriumCandidate{}
	}

	direct := SharesForCost(pools[target], remaining, domain.SideYes)
	pools[target] = PoolAfterTrade(pools[target], remaining, domain.SideYes)

	return equilibriumCandidate{
		shares:   m + direct,
		pools:    pools,
		sumP:     SumProbabilities(pools),
		feasible: true,
	}
}

// singlePoolBuy prices a fixed spend against the target pool alone.
func singlePoolBuy(set domain.PoolSet, cell domain.Cell, side domain.Side, amount float64, status domain.ConvergenceStatus) domain.TradeResult {
	pools := set.Clone()
	shares := SharesForCost(pools[cell], amount, side)
	pools[cell] = PoolAfterTrade(pools[cell], amount, side)
	return domain.TradeResult{Shares: shares, Cost: amount, Status: status, Pools: pools}
}

// singlePoolCost prices a fixed share count against the target pool alone.
func singlePoolCost(set domain.PoolSet, cell domain.Cell, side domain.Side, shares float64) domain.TradeResult {
	pools := set.Clone()
	cost := CostForShares(pools[cell], shares, side)
	if math.IsInf(cost, 1) {
		return domain.TradeResult{Cost: cost, Status: domain.ConvergenceInfeasible, Pools: pools}
	}
	pools[cell] = PoolAfterTrade(pools[cell], cost, side)
	return domain.TradeResult{Shares: shares, Cost: cost, Status: domain.ConvergenceFellBack, Pools: pools}
}

// worstStatus combines two convergence statuses, preferring the weaker one.
func worstStatus(a, b domain.ConvergenceStatus) domain.ConvergenceStatus {
	rank := func(s domain.ConvergenceStatus) int {
		switch s {
		case domain.ConvergenceInfeasible:
			return 2
		case domain.ConvergenceFellBack:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
