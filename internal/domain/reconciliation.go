package domain

import "time"

// Default tolerances for reconciliation, in percent. Multi-leg plans drift
// further from a same-instant venue quote because each simulated leg moves
// the pools the next leg is priced on.
const (
	SingleLegTolerancePct = 1.0
	MultiLegTolerancePct  = 3.0
)

// LegComparison compares one locally simulated leg against the venue's
// authoritative dry-run quote for the identical order.
type LegComparison struct {
	LegIndex         int
	Cell             Cell
	Side             Side
	LocalShares      float64
	ExternalShares   float64
	AbsoluteError    float64
	RelativeErrorPct float64
	Available        bool // false when the external quote could not be fetched
	Match            bool // within tolerance; false when unavailable
}

// ReconciliationReport is the diagnostic outcome of comparing a whole plan
// against venue dry-run quotes. Unavailable legs fail the report rather than
// being silently skipped.
type ReconciliationReport struct {
	ID           string
	PlanID       string
	MarketID     string
	Legs         []LegComparison
	TolerancePct float64
	Passed       bool
	CreatedAt    time.Time
}
