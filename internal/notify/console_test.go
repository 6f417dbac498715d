package notify

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

func TestConsoleSender_Send(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	require.NoError(t, c.Send(context.Background(), "plan ready", "2 legs simulated"))
	assert.Contains(t, buf.String(), "plan ready")
	assert.Contains(t, buf.String(), "2 legs simulated")
}

func TestRenderPlan(t *testing.T) {
	var buf bytes.Buffer
	plan := domain.Plan{
		ID:        "p1",
		MarketID:  "m1",
		Kind:      domain.PlanDirect,
		TotalCost: 10,
		Valid:     true,
		FailedLeg: -1,
		Legs: []domain.PlanLeg{
			{Cell: domain.CellYesYes, Side: domain.SideYes, Role: domain.LegRoleTarget,
				Cost: 10, Shares: 19.09, Status: domain.ConvergenceConverged},
		},
		PayoutByCell: map[domain.Cell]float64{
			domain.CellYesYes: 19.09,
			domain.CellYesNo:  0,
			domain.CellNoYes:  0,
			domain.CellNoNo:   0,
		},
		RoleByCell: map[domain.Cell]domain.PayoutRole{
			domain.CellYesYes: domain.PayoutWin,
			domain.CellYesNo:  domain.PayoutLose,
			domain.CellNoYes:  domain.PayoutLose,
			domain.CellNoNo:   domain.PayoutLose,
		},
		Warnings: []string{"reduced accuracy"},
	}

	RenderPlan(&buf, plan)

	out := buf.String()
	assert.Contains(t, out, "yes_yes")
	assert.Contains(t, out, "converged")
	assert.Contains(t, out, "warning: reduced accuracy")
}

func TestRenderPlan_InfiniteCost(t *testing.T) {
	var buf bytes.Buffer
	plan := domain.Plan{
		ID:       "p2",
		MarketID: "m1",
		Kind:     domain.PlanDirect,
		Legs: []domain.PlanLeg{
			{Cell: domain.CellNoNo, Side: domain.SideYes, Role: domain.LegRoleTarget,
				Cost: math.Inf(1), Status: domain.ConvergenceInfeasible},
		},
		FailedLeg: 0,
	}

	RenderPlan(&buf, plan)
	assert.Contains(t, buf.String(), "INF")
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	report := domain.ReconciliationReport{
		ID:           "r1",
		PlanID:       "p1",
		TolerancePct: 1,
		Passed:       false,
		Legs: []domain.LegComparison{
			{LegIndex: 0, Cell: domain.CellYesYes, Side: domain.SideYes,
				LocalShares: 10, ExternalShares: 10.05, RelativeErrorPct: 0.4975,
				Available: true, Match: true},
			{LegIndex: 1, Cell: domain.CellYesNo, Side: domain.SideYes,
				LocalShares: 5, Available: false},
		},
	}

	RenderReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "unavailable")
}
