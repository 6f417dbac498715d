// Package planner composes the pricing primitives into multi-leg trade
// plans: direct buys, conditional (hedged) bets, marginal row/column bets,
// and market-neutral correlation bets. Every leg is priced against the pool
// state left behind by all earlier legs of the same plan, because the
// venue's auto-arbitrage couples all four pools; state is threaded through
// explicit PoolSet snapshots, never shared mutation.
package planner

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/pricing"
)

// DefaultMinStake is the venue's per-leg currency floor. Legs priced below
// it are flagged distinctly so callers can warn before execution; nothing is
// ever rounded up silently.
const DefaultMinStake = 1.0

// Planner builds simulated multi-leg plans. It holds no market state.
type Planner struct {
	minStake float64
	logger   *slog.Logger
}

// New creates a Planner. minStake <= 0 selects DefaultMinStake.
func New(minStake float64, logger *slog.Logger) *Planner {
	if minStake <= 0 {
		minStake = DefaultMinStake
	}
	return &Planner{
		minStake: minStake,
		logger:   logger.With(slog.String("component", "planner")),
	}
}

// Build simulates the requested plan against a snapshot of the market's
// pools. The input PoolSet is never mutated. A structurally invalid request
// (bad pools, unknown cell) returns an error; a financially infeasible leg
// returns a Plan with Valid=false and the failing leg identified.
func (p *Planner) Build(req domain.PlanRequest) (domain.Plan, error) {
	if err := req.Pools.Validate(); err != nil {
		return domain.Plan{}, fmt.Errorf("planner: %w", err)
	}

	var (
		plan domain.Plan
		err  error
	)
	switch req.Kind {
	case domain.PlanDirect:
		plan, err = p.buildDirect(req)
	case domain.PlanConditional:
		plan, err = p.buildConditional(req)
	case domain.PlanMarginal:
		plan, err = p.buildMarginal(req)
	case domain.PlanCorrelation:
		plan, err = p.buildCorrelation(req)
	default:
		return domain.Plan{}, fmt.Errorf("planner: unsupported plan kind %q", req.Kind)
	}
	if err != nil {
		return domain.Plan{}, err
	}

	p.logger.Debug("plan built",
		slog.String("plan_id", plan.ID),
		slog.String("kind", string(plan.Kind)),
		slog.Bool("valid", plan.Valid),
		slog.Float64("total_cost", plan.TotalCost),
	)
	return plan, nil
}

// newPlan initializes the common plan fields.
func (p *Planner) newPlan(req domain.PlanRequest) domain.Plan {
	return domain.Plan{
		ID:           uuid.New().String(),
		MarketID:     req.MarketID,
		Kind:         req.Kind,
		PayoutByCell: make(map[domain.Cell]float64, len(domain.CellOrder)),
		RoleByCell:   make(map[domain.Cell]domain.PayoutRole, len(domain.CellOrder)),
		Valid:        true,
		FailedLeg:    -1,
		CreatedAt:    time.Now().UTC(),
	}
}

func (p *Planner) floor(req domain.PlanRequest) float64 {
	if req.MinStake > 0 {
		return req.MinStake
	}
	return p.minStake
}

// legFeasible reports whether a simulated trade produced a usable cost.
func legFeasible(res domain.TradeResult) bool {
	return res.Status != domain.ConvergenceInfeasible &&
		!math.IsInf(res.Cost, 0) && !math.IsNaN(res.Cost) &&
		!math.IsNaN(res.Shares)
}

// buildDirect prices a single market order through the equilibrium
// simulator.
func (p *Planner) buildDirect(req domain.PlanRequest) (domain.Plan, error) {
	if !req.Target.Valid() {
		return domain.Plan{}, fmt.Errorf("planner: %w: %q", domain.ErrInvalidCell, req.Target)
	}
	plan := p.newPlan(req)
	floor := p.floor(req)

	res, err := pricing.SimulateBuy(req.Pools, req.Target, req.Side, req.Budget)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("planner: direct leg: %w", err)
	}

	leg := domain.PlanLeg{
		Cell:         req.Target,
		Side:         req.Side,
		Role:         domain.LegRoleTarget,
		Cost:         res.Cost,
		Shares:       res.Shares,
		Status:       res.Status,
		BelowMinimum: res.Cost < floor,
	}
	plan.Legs = append(plan.Legs, leg)
	plan.Pools = res.Pools
	plan.TotalCost = res.Cost

	if !legFeasible(res) {
		plan.Valid = false
		plan.FailedLeg = 0
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("leg 0 (%s %s) is infeasible", req.Target, req.Side))
		return plan, nil
	}

	for _, c := range domain.CellOrder {
		wins := c == req.Target
		if req.Side == domain.SideNo {
			wins = !wins
		}
		if wins {
			plan.PayoutByCell[c] = res.Shares
			plan.RoleByCell[c] = domain.PayoutWin
		} else {
			plan.PayoutByCell[c] = 0
			plan.RoleByCell[c] = domain.PayoutLose
		}
	}
	return plan, nil
}

// buildMarginal bets on a full row or column of the 2x2 grid by splitting
// the budget evenly across its two cells and pricing them sequentially.
func (p *Planner) buildMarginal(req domain.PlanRequest) (domain.Plan, error) {
	plan := p.newPlan(req)
	floor := p.floor(req)
	cells := domain.MarginalCells(req.MarginalEvent, req.MarginalHolds)
	perLeg := req.Budget / 2

	pools := req.Pools.Clone()
	for i, cell := range cells {
		res, err := pricing.SimulateBuy(pools, cell, domain.SideYes, perLeg)
		if err != nil {
			return domain.Plan{}, fmt.Errorf("planner: marginal leg %d: %w", i, err)
		}
		leg := domain.PlanLeg{
			Cell:         cell,
			Side:         domain.SideYes,
			Role:         domain.LegRoleMarginal,
			Cost:         res.Cost,
			Shares:       res.Shares,
			Status:       res.Status,
			BelowMinimum: res.Cost < floor,
		}
		plan.Legs = append(plan.Legs, leg)
		plan.TotalCost += res.Cost
		pools = res.Pools
		if !legFeasible(res) {
			plan.Valid = false
			plan.FailedLeg = i
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("leg %d (%s) is infeasible", i, cell))
			plan.Pools = pools
			return plan, nil
		}
		plan.PayoutByCell[cell] = res.Shares
		plan.RoleByCell[cell] = domain.PayoutWin
	}
	plan.Pools = pools

	for _, c := range domain.CellOrder {
		if _, ok := plan.RoleByCell[c]; !ok {
			plan.PayoutByCell[c] = 0
			plan.RoleByCell[c] = domain.PayoutLose
		}
	}
	return plan, nil
}
