package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/metrics"
	"github.com/evand/conditional-markets/internal/notify"
	"github.com/evand/conditional-markets/internal/planner"
	"github.com/evand/conditional-markets/internal/pricing"
)

// PoolFetcher is the slice of the venue AMM API that planning needs.
// Satisfied by polymarket.AMMClient.
type PoolFetcher interface {
	GetPools(ctx context.Context, market domain.JointMarket) (domain.PoolSet, map[domain.Cell]float64, error)
}

// PlanService orchestrates one simulation: fresh pool snapshot, plan build,
// persistence, notification.
type PlanService struct {
	markets   *MarketService
	pools     PoolFetcher
	planner   *planner.Planner
	plans     domain.PlanStore
	poolCache domain.PoolCache
	notifier  *notify.Notifier
	logger    *slog.Logger
}

// NewPlanService creates a PlanService with all required dependencies.
// poolCache and notifier may be nil; both are best-effort side channels.
func NewPlanService(
	markets *MarketService,
	pools PoolFetcher,
	pl *planner.Planner,
	plans domain.PlanStore,
	poolCache domain.PoolCache,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *PlanService {
	return &PlanService{
		markets:   markets,
		pools:     pools,
		planner:   pl,
		plans:     plans,
		poolCache: poolCache,
		notifier:  notifier,
		logger:    logger,
	}
}

// Simulate fetches a fresh pool snapshot for the request's market, builds the
// plan against it, and persists the result. The snapshot is taken once per
// call; it is never reused across simulations.
func (s *PlanService) Simulate(ctx context.Context, req domain.PlanRequest) (domain.Plan, error) {
	market, err := s.markets.GetMarket(ctx, req.MarketID)
	if err != nil {
		return domain.Plan{}, err
	}

	pools, venuePrices, err := s.pools.GetPools(ctx, market)
	if err != nil {
		metrics.PoolFetchesTotal.WithLabelValues("error").Inc()
		return domain.Plan{}, fmt.Errorf("plan_service: fetch pools for %q: %w", req.MarketID, err)
	}
	metrics.PoolFetchesTotal.WithLabelValues("ok").Inc()
	req.Pools = pools

	s.cacheSnapshot(ctx, req.MarketID, pools)
	s.logVenueDrift(ctx, market, pools, venuePrices)

	start := time.Now()
	plan, err := s.planner.Build(req)
	if err != nil {
		return domain.Plan{}, err
	}
	metrics.PlanBuildDuration.WithLabelValues(string(plan.Kind)).Observe(time.Since(start).Seconds())
	metrics.PlansTotal.WithLabelValues(string(plan.Kind), fmt.Sprintf("%t", plan.Valid)).Inc()
	for _, leg := range plan.Legs {
		if leg.Status == domain.ConvergenceFellBack {
			metrics.ConvergenceFallbacks.WithLabelValues(string(plan.Kind)).Inc()
		}
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		return domain.Plan{}, fmt.Errorf("plan_service: persist plan %q: %w", plan.ID, err)
	}

	s.notifyPlan(ctx, market, plan)
	return plan, nil
}

// cacheSnapshot records the just-fetched pool state for display paths.
func (s *PlanService) cacheSnapshot(ctx context.Context, marketID string, pools domain.PoolSet) {
	if s.poolCache == nil {
		return
	}
	snap := domain.PoolSnapshot{
		MarketID:  marketID,
		Pools:     pools,
		FetchedAt: time.Now().UTC(),
	}
	if err := s.poolCache.SetSnapshot(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "plan_service: pool snapshot cache failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// logVenueDrift compares reserve-derived probabilities against the venue's
// own quotes. The venue quote is a cross-check, never pricing ground truth.
func (s *PlanService) logVenueDrift(ctx context.Context, market domain.JointMarket, pools domain.PoolSet, venuePrices map[domain.Cell]float64) {
	for _, c := range domain.CellOrder {
		quoted, ok := venuePrices[c]
		if !ok {
			continue
		}
		local := pricing.Probability(pools[c])
		if diff := local - quoted; diff > 0.02 || diff < -0.02 {
			s.logger.WarnContext(ctx, "plan_service: venue price drift",
				slog.String("market_id", market.ID),
				slog.String("cell", string(c)),
				slog.Float64("local", local),
				slog.Float64("venue", quoted),
			)
		}
	}
}

// notifyPlan emits a plan_built or plan_invalid event. Failures are logged,
// never propagated.
func (s *PlanService) notifyPlan(ctx context.Context, market domain.JointMarket, plan domain.Plan) {
	if s.notifier == nil {
		return
	}

	event := "plan_built"
	title := fmt.Sprintf("Plan %s (%s)", shortID(plan.ID), plan.Kind)
	msg := fmt.Sprintf("%s: %d legs, total cost %.4f", market.Question, len(plan.Legs), plan.TotalCost)
	if !plan.Valid {
		event = "plan_invalid"
		msg = fmt.Sprintf("%s: infeasible at leg %d", market.Question, plan.FailedLeg)
	}

	if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
		s.logger.WarnContext(ctx, "plan_service: notify failed",
			slog.String("plan_id", plan.ID),
			slog.String("error", err.Error()),
		)
	}
}

// GetPlan returns one persisted plan with its legs.
func (s *PlanService) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("plan_service: get plan %q: %w", id, err)
	}
	return plan, nil
}

// ListPlans returns plan history, scoped to a market when marketID is set.
func (s *PlanService) ListPlans(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Plan, error) {
	var (
		plans []domain.Plan
		err   error
	)
	if marketID != "" {
		plans, err = s.plans.ListByMarket(ctx, marketID, opts)
	} else {
		plans, err = s.plans.ListRecent(ctx, opts.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("plan_service: list plans: %w", err)
	}
	return plans, nil
}

// shortID abbreviates a plan ID for notification titles. IDs are UUIDs in
// practice, but store-loaded strings get no such guarantee.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
