package planner

import (
	"fmt"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/pricing"
)

// buildConditional simulates a conditional bet P(target | condition): first
// acquire a fixed share count in each of the two cells where the condition
// fails (so the stake comes back if the condition never happens), then spend
// the rest of the budget on the target. Hedge legs are priced first and each
// leg sees the pool state the previous legs left behind.
//
// Payout classification: the target cell WINs, the complementary cell under
// the same condition LOSEs, and both hedge cells are NEUTRAL — their payout
// equals the hedge share count, which the caller sizes to roughly refund the
// hedge spend.
func (p *Planner) buildConditional(req domain.PlanRequest) (domain.Plan, error) {
	if !req.Target.Valid() {
		return domain.Plan{}, fmt.Errorf("planner: %w: %q", domain.ErrInvalidCell, req.Target)
	}
	plan := p.newPlan(req)
	floor := p.floor(req)

	hedgeCells := domain.HedgeCells(req.Target, req.Condition)
	loseCell := domain.ComplementCell(req.Target, req.Condition)

	pools := req.Pools.Clone()
	for i, cell := range hedgeCells {
		res, err := pricing.CostForSharesMulti(pools, cell, domain.SideYes, req.HedgeShares)
		if err != nil {
			return domain.Plan{}, fmt.Errorf("planner: hedge leg %d: %w", i, err)
		}
		leg := domain.PlanLeg{
			Cell:            cell,
			Side:            domain.SideYes,
			Role:            domain.LegRoleHedge,
			RequestedShares: req.HedgeShares,
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
			plan.FailedLeg = i
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("hedge leg %d (%s) is infeasible", i, cell))
			plan.Pools = pools
			return plan, nil
		}
	}

	remaining := req.Budget - plan.TotalCost
	if remaining < 0 {
		plan.Valid = false
		plan.FailedLeg = len(plan.Legs)
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("hedge legs cost %.4f, exceeding the %.4f budget", plan.TotalCost, req.Budget))
		plan.Pools = pools
		return plan, nil
	}

	res, err := pricing.SimulateBuy(pools, req.Target, domain.SideYes, remaining)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("planner: target leg: %w", err)
	}
	targetLeg := domain.PlanLeg{
		Cell:         req.Target,
		Side:         domain.SideYes,
		Role:         domain.LegRoleTarget,
		Cost:         res.Cost,
		Shares:       res.Shares,
		Status:       res.Status,
		BelowMinimum: res.Cost < floor,
	}
	plan.Legs = append(plan.Legs, targetLeg)
	plan.TotalCost += res.Cost
	plan.Pools = res.Pools
	if !legFeasible(res) {
		plan.Valid = false
		plan.FailedLeg = len(plan.Legs) - 1
		plan.Warnings = append(plan.Warnings, "target leg is infeasible")
		return plan, nil
	}

	plan.PayoutByCell[req.Target] = res.Shares
	plan.RoleByCell[req.Target] = domain.PayoutWin
	plan.PayoutByCell[loseCell] = 0
	plan.RoleByCell[loseCell] = domain.PayoutLose
	for _, cell := range hedgeCells {
		plan.PayoutByCell[cell] = req.HedgeShares
		plan.RoleByCell[cell] = domain.PayoutNeutral
	}
	return plan, nil
}
