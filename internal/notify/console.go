package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/evand/conditional-markets/internal/domain"
)

// ConsoleSender implements Sender by writing to a console stream. Used in
// simulate and reconcile modes where an operator is watching the terminal.
type ConsoleSender struct {
	out io.Writer
}

// NewConsoleSender creates a ConsoleSender that writes to stdout.
func NewConsoleSender() *ConsoleSender {
	return &ConsoleSender{out: os.Stdout}
}

// NewConsoleWriter creates a ConsoleSender for tests.
func NewConsoleWriter(w io.Writer) *ConsoleSender {
	return &ConsoleSender{out: w}
}

// Send prints the notification with a timestamp prefix.
func (c *ConsoleSender) Send(_ context.Context, title, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n%s\n", time.Now().Format("15:04:05"), title, message)
	return err
}

// Name returns the sender identifier.
func (c *ConsoleSender) Name() string {
	return "console"
}

// RenderPlan writes a plan as a console table: one row per leg, then a payout
// row per cell. Costs that could not be determined print as "INF".
func RenderPlan(w io.Writer, plan domain.Plan) {
	fmt.Fprintf(w, "\nplan %s  kind=%s  market=%s  valid=%t  total=$%s\n",
		plan.ID, plan.Kind, plan.MarketID, plan.Valid, money(plan.TotalCost))
	if plan.Kind == domain.PlanCorrelation {
		fmt.Fprintf(w, "neutrality score: %.4f\n", plan.NeutralityScore)
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Cell", "Side", "Role", "Cost", "Shares", "Status", "Notes")

	for i, leg := range plan.Legs {
		notes := ""
		if leg.BelowMinimum {
			notes = "below venue minimum"
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			string(leg.Cell),
			string(leg.Side),
			string(leg.Role),
			"$"+money(leg.Cost),
			money(leg.Shares),
			string(leg.Status),
			notes,
		)
	}
	table.Render()

	if len(plan.PayoutByCell) > 0 {
		payouts := tablewriter.NewWriter(w)
		payouts.Header("Cell", "Payout", "Net", "Role")
		for _, cell := range domain.CellOrder {
			payout := plan.PayoutByCell[cell]
			payouts.Append(
				string(cell),
				"$"+money(payout),
				"$"+money(payout-plan.TotalCost),
				string(plan.RoleByCell[cell]),
			)
		}
		payouts.Render()
	}

	for _, warn := range plan.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}

// RenderReport writes a reconciliation report as a console table.
func RenderReport(w io.Writer, report domain.ReconciliationReport) {
	verdict := "PASSED"
	if !report.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(w, "\nreconciliation %s  plan=%s  tolerance=%.1f%%  %s\n",
		report.ID, report.PlanID, report.TolerancePct, verdict)

	table := tablewriter.NewWriter(w)
	table.Header("#", "Cell", "Side", "Local", "Venue", "Err%", "Match")

	for _, leg := range report.Legs {
		venue := money(leg.ExternalShares)
		errPct := fmt.Sprintf("%.3f", leg.RelativeErrorPct)
		if !leg.Available {
			venue = "unavailable"
			errPct = "-"
		}
		table.Append(
			fmt.Sprintf("%d", leg.LegIndex+1),
			string(leg.Cell),
			string(leg.Side),
			money(leg.LocalShares),
			venue,
			errPct,
			fmt.Sprintf("%t", leg.Match),
		)
	}
	table.Render()
}

func money(v float64) string {
	if math.IsInf(v, 1) {
		return "INF"
	}
	if math.IsInf(v, -1) {
		return "-INF"
	}
	return fmt.Sprintf("%.4f", v)
}

var _ Sender = (*ConsoleSender)(nil)
