package domain

import "time"

// Side selects which side of an outcome pool a trade buys.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ConvergenceStatus reports how a bisection search ended. The searches are
// best-effort approximations with hard iteration caps, so callers need to
// know whether a result is exact, degraded, or unusable.
type ConvergenceStatus string

const (
	// ConvergenceConverged means the search met its tolerance.
	ConvergenceConverged ConvergenceStatus = "converged"
	// ConvergenceFellBack means the result came from the best candidate seen
	// or from the plain single-pool approximation; accuracy is reduced.
	ConvergenceFellBack ConvergenceStatus = "fell_back"
	// ConvergenceInfeasible means no result could be produced at all.
	ConvergenceInfeasible ConvergenceStatus = "infeasible"
)

// TradeResult is the outcome of simulating one trade. Pools is a fresh
// snapshot; the input set is never mutated.
type TradeResult struct {
	Shares float64
	Cost   float64
	Status ConvergenceStatus
	Pools  PoolSet
}

// PlanKind tags the PlanRequest variant.
type PlanKind string

const (
	PlanDirect      PlanKind = "direct"
	PlanConditional PlanKind = "conditional"
	PlanMarginal    PlanKind = "marginal"
	PlanCorrelation PlanKind = "correlation"
)

// CorrelationDirection selects which diagonal a correlation plan profits on.
type CorrelationDirection string

const (
	// CorrelationLong profits when the events agree (A∧B or ¬A∧¬B).
	CorrelationLong CorrelationDirection = "long"
	// CorrelationShort profits when the events disagree.
	CorrelationShort CorrelationDirection = "short"
)

// PlanRequest is the tagged union of the four plan variants. Exactly one
// variant's fields are read, selected by Kind; there is no shared mutable
// "current mode" anywhere in the engine.
type PlanRequest struct {
	Kind     PlanKind
	MarketID string
	Pools    PoolSet

	// Direct and conditional.
	Target Cell
	Side   Side
	Budget float64

	// Conditional: the conditioning event and the share count to acquire in
	// each of the two hedge cells.
	Condition   Event
	HedgeShares float64

	// Marginal: bet on a full row or column of the 2x2 grid.
	MarginalEvent Event
	MarginalHolds bool

	// Correlation.
	Direction CorrelationDirection
	MaxShares float64

	// MinStake is the venue's per-leg currency floor; zero means the
	// planner's default.
	MinStake float64
}

// LegRole describes why a leg is part of its plan.
type LegRole string

const (
	LegRoleTarget      LegRole = "target"
	LegRoleHedge       LegRole = "hedge"
	LegRoleMarginal    LegRole = "marginal"
	LegRoleCorrelation LegRole = "correlation"
)

// PlanLeg is one simulated trade inside a plan, priced against the pool
// state left behind by all earlier legs.
type PlanLeg struct {
	Cell            Cell
	Side            Side
	Role            LegRole
	RequestedShares float64 // zero when the leg is amount-driven
	Cost            float64
	Shares          float64
	Status          ConvergenceStatus
	BelowMinimum    bool // cost under the venue floor; reported, not rounded
}

// PayoutRole classifies what a plan earns per outcome.
type PayoutRole string

const (
	PayoutWin     PayoutRole = "win"
	PayoutLose    PayoutRole = "lose"
	PayoutNeutral PayoutRole = "neutral"
)

// Plan is a fully simulated multi-leg strategy. If any leg's cost cannot be
// determined the whole plan is invalid and FailedLeg identifies the culprit;
// partial plans are never produced as valid.
type Plan struct {
	ID           string
	MarketID     string
	Kind         PlanKind
	Legs         []PlanLeg
	TotalCost    float64
	PayoutByCell map[Cell]float64
	RoleByCell   map[Cell]PayoutRole
	Pools        PoolSet // projected state after all legs
	Valid        bool
	FailedLeg    int // -1 when Valid
	Warnings     []string

	// NeutralityScore is set for correlation plans: the worst normalized
	// conditional-payout imbalance at pre-trade prices. Zero is perfectly
	// neutral; it degrades as price impact grows with trade size.
	NeutralityScore float64

	CreatedAt time.Time
}
