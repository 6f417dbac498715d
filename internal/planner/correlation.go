package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/pricing"
)

// degenerateDeterminant is the threshold below which the neutrality system
// is treated as degenerate and the trivial diagonal weights are used instead
// of dividing by a near-zero determinant.
const degenerateDeterminant = 1e-9

// zeroWeight is the threshold below which a scaled weight produces no leg.
const zeroWeight = 1e-9

// SolveWeights derives per-cell share weights, in CellOrder, whose expected
// payout is the same whether event A occurs or not and whether event B
// occurs or not, at the given joint probabilities. The two neutrality
// constraints leave a two-dimensional solution space; the uniform
// (cash-equivalent) direction is removed by fixing the first weight to 1 and
// the last to 0, reducing to a 2x2 linear system solved by Cramer's rule.
//
// The returned degenerate flag is true when the determinant is near zero
// (the canonical case: independent events at pA=pB=0.5); the documented
// fallback (1,0,0,1) is returned instead of an unstable division.
func SolveWeights(probs [4]float64) ([4]float64, bool) {
	p1, p2, p3, p4 := probs[0], probs[1], probs[2], probs[3]

	// E[payout|A] = E[payout|not A], with s1=1, s4=0:
	//   p2*(p3+p4)*s2 - p3*(p1+p2)*s3 = -p1*(p3+p4)
	// E[payout|B] = E[payout|not B]:
	//   p2*(p1+p3)*s2 - p3*(p2+p4)*s3 =  p1*(p2+p4)
	a11 := p2 * (p3 + p4)
	a12 := -p3 * (p1 + p2)
	b1 := -p1 * (p3 + p4)
	a21 := p2 * (p1 + p3)
	a22 := -p3 * (p2 + p4)
	b2 := p1 * (p2 + p4)

	det := a11*a22 - a12*a21
	if math.Abs(det) < degenerateDeterminant {
		return [4]float64{1, 0, 0, 1}, true
	}

	s2 := (b1*a22 - a12*b2) / det
	s3 := (a11*b2 - b1*a21) / det
	return [4]float64{1, s2, s3, 0}, false
}

// ScaleWeights converts a raw neutral weight vector into a long-only trade
// sizing: the vector is negated if needed so the requested correlation
// direction's cells carry the weight, shifted by its minimum so every
// component is non-negative (financially a cash leg), and scaled so the
// largest weight equals maxShares. All three steps preserve double
// neutrality at the quoted prices.
func ScaleWeights(raw [4]float64, direction domain.CorrelationDirection, maxShares float64) [4]float64 {
	w := raw

	diag := w[0] + w[3]
	off := w[1] + w[2]
	negate := false
	switch direction {
	case domain.CorrelationShort:
		negate = diag > off
	default:
		negate = diag < off
	}
	if negate {
		for i := range w {
			w[i] = -w[i]
		}
	}

	min := w[0]
	for _, v := range w[1:] {
		if v < min {
			min = v
		}
	}
	for i := range w {
		w[i] -= min
	}

	max := w[0]
	for _, v := range w[1:] {
		if v > max {
			max = v
		}
	}
	if max > 0 && maxShares > 0 {
		scale := maxShares / max
		for i := range w {
			w[i] *= scale
		}
	}
	return w
}

// buildCorrelation prices a doubly-neutral correlation bet: solve for the
// neutral weights at the quoted prices, then cost the resulting legs
// sequentially, cheapest first so the venue's minimum-stake floor distorts
// the plan as little as possible.
func (p *Planner) buildCorrelation(req domain.PlanRequest) (domain.Plan, error) {
	plan := p.newPlan(req)
	floor := p.floor(req)

	var probs [4]float64
	for i, c := range domain.CellOrder {
		probs[i] = pricing.Probability(req.Pools[c])
	}

	raw, degenerate := SolveWeights(probs)
	if degenerate {
		plan.Warnings = append(plan.Warnings,
			"neutrality system is degenerate (events look independent); using trivial diagonal weights")
	}
	weights := ScaleWeights(raw, req.Direction, req.MaxShares)

	// Cheapest legs first, estimated at quoted prices.
	order := make([]int, 0, len(domain.CellOrder))
	for i := range domain.CellOrder {
		if weights[i] > zeroWeight {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(a, b int) bool {
		return weights[order[a]]*probs[order[a]] < weights[order[b]]*probs[order[b]]
	})

	acquired := make(map[domain.Cell]float64, len(order))
	pools := req.Pools.Clone()
	for n, idx := range order {
		cell := domain.CellOrder[idx]
		res, err := pricing.CostForSharesMulti(pools, cell, domain.SideYes, weights[idx])
		if err != nil {
			return domain.Plan{}, fmt.Errorf("planner: correlation leg %d: %w", n, err)
		}
		leg := domain.PlanLeg{
			Cell:            cell,
			Side:            domain.SideYes,
			Role:            domain.LegRoleCorrelation,
			RequestedShares: weights[idx],
			Cost:            res.Cost,
			Shares:          res.Shares,
			Status:          res.Status,
			BelowMinimum:    res.Cost < floor,
		}
		plan.Legs = append(plan.Legs, leg)
		plan.TotalCost += res.Cost
		pools = res.Pools
		if !legFeasible(res) {
			plan.Valid = false
			plan.FailedLeg = n
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("correlation leg %d (%s) is infeasible", n, cell))
			plan.Pools = pools
			return plan, nil
		}
		acquired[cell] = res.Shares
	}
	plan.Pools = pools

	for _, c := range domain.CellOrder {
		payout := acquired[c]
		plan.PayoutByCell[c] = payout
		switch {
		case payout > plan.TotalCost*(1+1e-9):
			plan.RoleByCell[c] = domain.PayoutWin
		case payout < plan.TotalCost*(1-1e-9):
			plan.RoleByCell[c] = domain.PayoutLose
		default:
			plan.RoleByCell[c] = domain.PayoutNeutral
		}
	}

	plan.NeutralityScore = neutralityScore(probs, acquired)
	return plan, nil
}

// neutralityScore measures how far the acquired position is from double
// neutrality at the pre-trade probabilities: the worst absolute difference
// between the conditional expected payouts, normalized by their mean. Zero
// is perfectly neutral; the score grows with trade size as price impact
// breaks the linear assumption the weights were solved under.
func neutralityScore(probs [4]float64, acquired map[domain.Cell]float64) float64 {
	s := [4]float64{}
	for i, c := range domain.CellOrder {
		s[i] = acquired[c]
	}
	p1, p2, p3, p4 := probs[0], probs[1], probs[2], probs[3]

	condExp := func(num, den float64) float64 {
		if den <= 0 {
			return 0
		}
		return num / den
	}
	eA := condExp(p1*s[0]+p2*s[1], p1+p2)
	eNotA := condExp(p3*s[2]+p4*s[3], p3+p4)
	eB := condExp(p1*s[0]+p3*s[2], p1+p3)
	eNotB := condExp(p2*s[1]+p4*s[3], p2+p4)

	avg := (eA + eNotA + eB + eNotB) / 4
	if avg <= 0 {
		return 0
	}
	worst := math.Max(math.Abs(eA-eNotA), math.Abs(eB-eNotB))
	return worst / avg
}
