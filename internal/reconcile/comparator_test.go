package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

func singleLegPlan(shares float64) domain.Plan {
	return domain.Plan{
		ID:       "plan-1",
		MarketID: "mkt-1",
		Kind:     domain.PlanDirect,
		Legs: []domain.PlanLeg{
			{Cell: domain.CellYesYes, Side: domain.SideYes, Shares: shares},
		},
	}
}

func threeLegPlan() domain.Plan {
	return domain.Plan{
		ID:       "plan-2",
		MarketID: "mkt-1",
		Kind:     domain.PlanConditional,
		Legs: []domain.PlanLeg{
			{Cell: domain.CellYesYes, Side: domain.SideYes, Shares: 10},
			{Cell: domain.CellYesNo, Side: domain.SideYes, Shares: 10},
			{Cell: domain.CellNoYes, Side: domain.SideYes, Shares: 25},
		},
	}
}

func TestToleranceFor(t *testing.T) {
	assert.Equal(t, domain.SingleLegTolerancePct, ToleranceFor(1))
	assert.Equal(t, domain.SingleLegTolerancePct, ToleranceFor(0))
	assert.Equal(t, domain.MultiLegTolerancePct, ToleranceFor(2))
	assert.Equal(t, domain.MultiLegTolerancePct, ToleranceFor(4))
}

func TestCompare_SingleLegWithinTolerance(t *testing.T) {
	plan := singleLegPlan(100)
	quotes := []ExternalQuote{{Shares: 100.5, Available: true}}

	report := Compare(plan, quotes, 0)

	require.Len(t, report.Legs, 1)
	assert.Equal(t, domain.SingleLegTolerancePct, report.TolerancePct)
	assert.True(t, report.Passed)

	leg := report.Legs[0]
	assert.True(t, leg.Match)
	assert.InDelta(t, 0.5, leg.AbsoluteError, 1e-9)
	assert.InDelta(t, 0.4975, leg.RelativeErrorPct, 1e-4)
}

func TestCompare_SingleLegMismatch(t *testing.T) {
	plan := singleLegPlan(100)
	quotes := []ExternalQuote{{Shares: 95, Available: true}}

	report := Compare(plan, quotes, 0)

	assert.False(t, report.Passed)
	assert.False(t, report.Legs[0].Match)
	assert.InDelta(t, 5.0, report.Legs[0].AbsoluteError, 1e-9)
}

func TestCompare_MultiLegUsesWiderBand(t *testing.T) {
	plan := threeLegPlan()
	// 2% off on the last leg: fails the single-leg band, passes multi-leg.
	quotes := []ExternalQuote{
		{Shares: 10, Available: true},
		{Shares: 10, Available: true},
		{Shares: 25.5, Available: true},
	}

	report := Compare(plan, quotes, 0)

	assert.Equal(t, domain.MultiLegTolerancePct, report.TolerancePct)
	assert.True(t, report.Passed)
	for _, leg := range report.Legs {
		assert.True(t, leg.Match)
	}
}

func TestCompare_ExplicitToleranceOverridesDefault(t *testing.T) {
	plan := singleLegPlan(100)
	quotes := []ExternalQuote{{Shares: 95, Available: true}}

	report := Compare(plan, quotes, 10)

	assert.Equal(t, 10.0, report.TolerancePct)
	assert.True(t, report.Passed)
}

func TestCompare_UnavailableLegFailsReport(t *testing.T) {
	plan := threeLegPlan()
	quotes := []ExternalQuote{
		{Shares: 10, Available: true},
		{Available: false},
		{Shares: 25, Available: true},
	}

	report := Compare(plan, quotes, 0)

	assert.False(t, report.Passed)
	assert.False(t, report.Legs[1].Available)
	assert.False(t, report.Legs[1].Match)
	assert.True(t, report.Legs[0].Match)
	assert.True(t, report.Legs[2].Match)
}

func TestCompare_MissingQuotesTreatedAsUnavailable(t *testing.T) {
	plan := threeLegPlan()
	quotes := []ExternalQuote{{Shares: 10, Available: true}}

	report := Compare(plan, quotes, 0)

	require.Len(t, report.Legs, 3)
	assert.False(t, report.Passed)
	assert.False(t, report.Legs[1].Available)
	assert.False(t, report.Legs[2].Available)
}

func TestCompare_ZeroExternalShares(t *testing.T) {
	plan := singleLegPlan(0)
	quotes := []ExternalQuote{{Shares: 0, Available: true}}

	report := Compare(plan, quotes, 0)
	assert.True(t, report.Passed)
	assert.Zero(t, report.Legs[0].RelativeErrorPct)

	plan = singleLegPlan(3)
	report = Compare(plan, quotes, 0)
	assert.False(t, report.Passed)
	assert.Equal(t, 100.0, report.Legs[0].RelativeErrorPct)
}

func TestCompare_CarriesPlanIdentity(t *testing.T) {
	plan := singleLegPlan(100)
	report := Compare(plan, []ExternalQuote{{Shares: 100, Available: true}}, 0)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, plan.ID, report.PlanID)
	assert.Equal(t, plan.MarketID, report.MarketID)
	assert.False(t, report.CreatedAt.IsZero())
}
