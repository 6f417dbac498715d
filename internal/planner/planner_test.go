package planner

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// equilibriumSet builds a symmetric market with all four cells at 0.25.
func equilibriumSet() domain.PoolSet {
	set := make(domain.PoolSet, 4)
	for _, c := range domain.CellOrder {
		set[c] = domain.Pool{YesReserve: 300, NoReserve: 100}
	}
	return set
}

// poolForProbability returns a pool pricing YES at p with a NO reserve of 100.
func poolForProbability(p float64) domain.Pool {
	return domain.Pool{YesReserve: 100 * (1 - p) / p, NoReserve: 100}
}

func TestBuild_UnsupportedKind(t *testing.T) {
	p := New(0, testLogger())
	_, err := p.Build(domain.PlanRequest{Kind: "limit", Pools: equilibriumSet()})
	assert.Error(t, err)
}

func TestBuild_InvalidPools(t *testing.T) {
	p := New(0, testLogger())
	set := equilibriumSet()
	set[domain.CellNoNo] = domain.Pool{YesReserve: -1, NoReserve: 100}
	_, err := p.Build(domain.PlanRequest{Kind: domain.PlanDirect, Pools: set, Target: domain.CellYesYes, Side: domain.SideYes, Budget: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidPool)
}

func TestDirectPlan(t *testing.T) {
	p := New(0, testLogger())
	plan, err := p.Build(domain.PlanRequest{
		Kind:     domain.PlanDirect,
		MarketID: "m1",
		Pools:    equilibriumSet(),
		Target:   domain.CellYesYes,
		Side:     domain.SideYes,
		Budget:   10,
	})
	require.NoError(t, err)

	assert.True(t, plan.Valid)
	assert.Equal(t, -1, plan.FailedLeg)
	require.Len(t, plan.Legs, 1)
	assert.False(t, plan.Legs[0].BelowMinimum)
	assert.InDelta(t, 10.0, plan.TotalCost, 1e-9)
	assert.Greater(t, plan.PayoutByCell[domain.CellYesYes], 10.0)
	assert.Equal(t, domain.PayoutWin, plan.RoleByCell[domain.CellYesYes])
	assert.Equal(t, domain.PayoutLose, plan.RoleByCell[domain.CellNoNo])
	assert.NotEmpty(t, plan.ID)
}

func TestDirectPlan_BelowMinimumFlagged(t *testing.T) {
	p := New(0, testLogger())
	plan, err := p.Build(domain.PlanRequest{
		Kind:   domain.PlanDirect,
		Pools:  equilibriumSet(),
		Target: domain.CellYesNo,
		Side:   domain.SideYes,
		Budget: 0.5,
	})
	require.NoError(t, err)
	assert.True(t, plan.Valid)
	assert.True(t, plan.Legs[0].BelowMinimum)
}

func TestConditionalPlan_HedgesAreNeutral(t *testing.T) {
	p := New(0, testLogger())
	plan, err := p.Build(domain.PlanRequest{
		Kind:        domain.PlanConditional,
		MarketID:    "m1",
		Pools:       equilibriumSet(),
		Target:      domain.CellYesYes,
		Condition:   domain.EventA,
		Budget:      50,
		HedgeShares: 10,
	})
	require.NoError(t, err)

	require.True(t, plan.Valid)
	require.Len(t, plan.Legs, 3)

	// Hedge legs first, then the target spends the remaining budget, so the
	// total is the budget exactly.
	assert.InDelta(t, 50.0, plan.TotalCost, 1e-9)
	assert.LessOrEqual(t, plan.TotalCost, 50.0+1e-9)

	assert.Equal(t, domain.PayoutWin, plan.RoleByCell[domain.CellYesYes])
	assert.Equal(t, domain.PayoutLose, plan.RoleByCell[domain.CellYesNo])
	assert.Equal(t, domain.PayoutNeutral, plan.RoleByCell[domain.CellNoYes])
	assert.Equal(t, domain.PayoutNeutral, plan.RoleByCell[domain.CellNoNo])
	assert.InDelta(t, 10.0, plan.PayoutByCell[domain.CellNoYes], 1e-9)
	assert.InDelta(t, 10.0, plan.PayoutByCell[domain.CellNoNo], 1e-9)

	assert.Equal(t, domain.LegRoleHedge, plan.Legs[0].Role)
	assert.Equal(t, domain.LegRoleHedge, plan.Legs[1].Role)
	assert.Equal(t, domain.LegRoleTarget, plan.Legs[2].Role)
}

func TestConditionalPlan_HedgesExceedBudget(t *testing.T) {
	p := New(0, testLogger())
	plan, err := p.Build(domain.PlanRequest{
		Kind:        domain.PlanConditional,
		Pools:       equilibriumSet(),
		Target:      domain.CellYesYes,
		Condition:   domain.EventA,
		Budget:      1,
		HedgeShares: 500,
	})
	require.NoError(t, err)
	assert.False(t, plan.Valid)
	assert.GreaterOrEqual(t, plan.FailedLeg, 0)
	assert.NotEmpty(t, plan.Warnings)
}

func TestMarginalPlan_SplitsEvenly(t *testing.T) {
	p := New(0, testLogger())
	plan, err := p.Build(domain.PlanRequest{
		Kind:          domain.PlanMarginal,
		MarketID:      "m1",
		Pools:         equilibriumSet(),
		MarginalEvent: domain.EventA,
		MarginalHolds: true,
		Budget:        20,
	})
	require.NoError(t, err)

	require.True(t, plan.Valid)
	require.Len(t, plan.Legs, 2)
	assert.InDelta(t, 10.0, plan.Legs[0].Cost, 1e-9)
	assert.InDelta(t, 10.0, plan.Legs[1].Cost, 1e-9)
	assert.InDelta(t, 20.0, plan.TotalCost, 1e-9)

	assert.Equal(t, domain.PayoutWin, plan.RoleByCell[domain.CellYesYes])
	assert.Equal(t, domain.PayoutWin, plan.RoleByCell[domain.CellYesNo])
	assert.Equal(t, domain.PayoutLose, plan.RoleByCell[domain.CellNoYes])
	assert.Equal(t, domain.PayoutLose, plan.RoleByCell[domain.CellNoNo])
	assert.Greater(t, plan.PayoutByCell[domain.CellYesYes], 0.0)
}
