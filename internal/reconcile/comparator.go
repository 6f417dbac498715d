// Package reconcile compares locally simulated plan legs against the
// venue's authoritative dry-run quotes and reports the drift. It performs no
// trading and no I/O: quote fetching belongs to the service layer, this
// package only measures.
package reconcile

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/evand/conditional-markets/internal/domain"
)

// ExternalQuote is the venue's dry-run answer for one leg, aligned by leg
// index. Available is false when the quote could not be fetched; that leg is
// reported as a failure, never skipped.
type ExternalQuote struct {
	Shares    float64
	Available bool
}

// ToleranceFor returns the default relative tolerance in percent. Multi-leg
// plans get a wider band: each simulated leg moves the pools the next leg is
// priced on, while the venue quotes every leg at the same live instant.
func ToleranceFor(legCount int) float64 {
	if legCount <= 1 {
		return domain.SingleLegTolerancePct
	}
	return domain.MultiLegTolerancePct
}

// Compare builds a reconciliation report for a simulated plan against the
// venue quotes. tolerancePct <= 0 selects the default for the leg count.
func Compare(plan domain.Plan, quotes []ExternalQuote, tolerancePct float64) domain.ReconciliationReport {
	if tolerancePct <= 0 {
		tolerancePct = ToleranceFor(len(plan.Legs))
	}

	report := domain.ReconciliationReport{
		ID:           uuid.New().String(),
		PlanID:       plan.ID,
		MarketID:     plan.MarketID,
		TolerancePct: tolerancePct,
		Passed:       true,
		CreatedAt:    time.Now().UTC(),
	}

	for i, leg := range plan.Legs {
		var q ExternalQuote
		if i < len(quotes) {
			q = quotes[i]
		}
		cmp := compareLeg(i, leg, q, tolerancePct)
		report.Legs = append(report.Legs, cmp)
		if !cmp.Match {
			report.Passed = false
		}
	}
	return report
}

func compareLeg(idx int, leg domain.PlanLeg, q ExternalQuote, tolerancePct float64) domain.LegComparison {
	cmp := domain.LegComparison{
		LegIndex:    idx,
		Cell:        leg.Cell,
		Side:        leg.Side,
		LocalShares: leg.Shares,
		Available:   q.Available,
	}
	if !q.Available {
		return cmp
	}

	cmp.ExternalShares = q.Shares
	cmp.AbsoluteError = math.Abs(leg.Shares - q.Shares)

	switch {
	case math.Abs(q.Shares) < 1e-12 && cmp.AbsoluteError < 1e-12:
		cmp.RelativeErrorPct = 0
	case math.Abs(q.Shares) < 1e-12:
		// No meaningful denominator: treat as a full mismatch.
		cmp.RelativeErrorPct = 100
	default:
		cmp.RelativeErrorPct = cmp.AbsoluteError / math.Abs(q.Shares) * 100
	}

	cmp.Match = cmp.RelativeErrorPct <= tolerancePct
	return cmp
}
