package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/metrics"
	"github.com/evand/conditional-markets/internal/notify"
	"github.com/evand/conditional-markets/internal/reconcile"
)

// reconcileLockTTL bounds how long a run can hold a plan's reconcile lock.
const reconcileLockTTL = 30 * time.Second

// ReconcileService fetches venue dry-run quotes for a persisted plan and
// records how far the local simulation drifted from them.
type ReconcileService struct {
	plans    domain.PlanStore
	reports  domain.ReportStore
	markets  *MarketService
	quotes   domain.QuoteProvider
	locks    domain.LockManager
	notifier *notify.Notifier
	logger   *slog.Logger

	// Tolerance overrides in percent; zero selects the comparator defaults.
	singleLegTolerancePct float64
	multiLegTolerancePct  float64
}

// NewReconcileService creates a ReconcileService. locks and notifier may be
// nil (no concurrency guard / no notifications).
func NewReconcileService(
	plans domain.PlanStore,
	reports domain.ReportStore,
	markets *MarketService,
	quotes domain.QuoteProvider,
	locks domain.LockManager,
	notifier *notify.Notifier,
	singleLegTolerancePct, multiLegTolerancePct float64,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		plans:                 plans,
		reports:               reports,
		markets:               markets,
		quotes:                quotes,
		locks:                 locks,
		notifier:              notifier,
		singleLegTolerancePct: singleLegTolerancePct,
		multiLegTolerancePct:  multiLegTolerancePct,
		logger:                logger,
	}
}

// Run reconciles one plan: it fetches an authoritative dry-run quote for each
// leg in order, one request per leg, compares against the simulated legs, and
// persists the report. A failed quote marks its leg unavailable and aborts
// the rest of the run; nothing is retried silently.
func (s *ReconcileService) Run(ctx context.Context, planID string) (domain.ReconciliationReport, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "reconcile:"+planID, reconcileLockTTL)
		if err != nil {
			return domain.ReconciliationReport{}, err
		}
		defer unlock()
	}

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return domain.ReconciliationReport{}, fmt.Errorf("reconcile_service: load plan %q: %w", planID, err)
	}

	market, err := s.markets.GetMarket(ctx, plan.MarketID)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}

	quotes := s.quoteLegs(ctx, market, plan)

	report := reconcile.Compare(plan, quotes, s.toleranceFor(len(plan.Legs)))
	s.recordMetrics(report)

	if err := s.reports.Create(ctx, report); err != nil {
		return domain.ReconciliationReport{}, fmt.Errorf("reconcile_service: persist report %q: %w", report.ID, err)
	}

	if !report.Passed {
		s.notifyFailure(ctx, market, report)
	}

	s.logger.InfoContext(ctx, "reconcile_service: run complete",
		slog.String("plan_id", planID),
		slog.Bool("passed", report.Passed),
		slog.Int("legs", len(report.Legs)),
	)
	return report, nil
}

// quoteLegs fetches one dry-run quote per leg, sequentially and in leg order.
// On the first quote failure the remaining legs are left unquoted; the
// comparator marks them unavailable, which fails the report.
func (s *ReconcileService) quoteLegs(ctx context.Context, market domain.JointMarket, plan domain.Plan) []reconcile.ExternalQuote {
	quotes := make([]reconcile.ExternalQuote, 0, len(plan.Legs))

	for i, leg := range plan.Legs {
		outcome, ok := market.Outcome(leg.Cell)
		if !ok {
			s.logger.WarnContext(ctx, "reconcile_service: leg cell missing from market",
				slog.String("plan_id", plan.ID),
				slog.Int("leg", i),
				slog.String("cell", string(leg.Cell)),
			)
			break
		}

		shares, err := s.quotes.DryRunBuy(ctx, market.ID, outcome.OutcomeID, leg.Side, leg.Cost)
		if err != nil {
			s.logger.WarnContext(ctx, "reconcile_service: dry-run quote failed, aborting run",
				slog.String("plan_id", plan.ID),
				slog.Int("leg", i),
				slog.String("error", err.Error()),
			)
			quotes = append(quotes, reconcile.ExternalQuote{Available: false})
			break
		}

		quotes = append(quotes, reconcile.ExternalQuote{Shares: shares, Available: true})
	}

	return quotes
}

// toleranceFor picks the configured band for the leg count, falling back to
// the comparator defaults when unconfigured.
func (s *ReconcileService) toleranceFor(legCount int) float64 {
	if legCount <= 1 {
		return s.singleLegTolerancePct
	}
	return s.multiLegTolerancePct
}

func (s *ReconcileService) recordMetrics(report domain.ReconciliationReport) {
	result := "failed"
	if report.Passed {
		result = "passed"
	}
	metrics.ReconcileRunsTotal.WithLabelValues(result).Inc()
	for _, leg := range report.Legs {
		if leg.Available {
			metrics.ReconcileLegError.Observe(leg.RelativeErrorPct)
		}
	}
}

// notifyFailure emits a reconcile_failed event. Failures are logged, never
// propagated.
func (s *ReconcileService) notifyFailure(ctx context.Context, market domain.JointMarket, report domain.ReconciliationReport) {
	if s.notifier == nil {
		return
	}

	mismatched := 0
	for _, leg := range report.Legs {
		if !leg.Match {
			mismatched++
		}
	}
	title := fmt.Sprintf("Reconciliation failed for plan %s", shortID(report.PlanID))
	msg := fmt.Sprintf("%s: %d of %d legs outside the %.1f%% band",
		market.Question, mismatched, len(report.Legs), report.TolerancePct)

	if err := s.notifier.Notify(ctx, "reconcile_failed", title, msg); err != nil {
		s.logger.WarnContext(ctx, "reconcile_service: notify failed",
			slog.String("report_id", report.ID),
			slog.String("error", err.Error()),
		)
	}
}

// GetReport returns one reconciliation report.
func (s *ReconcileService) GetReport(ctx context.Context, id string) (domain.ReconciliationReport, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return domain.ReconciliationReport{}, fmt.Errorf("reconcile_service: get report %q: %w", id, err)
	}
	return report, nil
}

// ListByPlan returns all reports recorded for one plan.
func (s *ReconcileService) ListByPlan(ctx context.Context, planID string) ([]domain.ReconciliationReport, error) {
	reports, err := s.reports.ListByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("reconcile_service: list by plan %q: %w", planID, err)
	}
	return reports, nil
}

// ListRecent returns the most recent reports across all plans.
func (s *ReconcileService) ListRecent(ctx context.Context, limit int) ([]domain.ReconciliationReport, error) {
	reports, err := s.reports.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reconcile_service: list recent: %w", err)
	}
	return reports, nil
}
