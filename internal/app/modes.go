package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evand/conditional-markets/internal/notify"
	"github.com/evand/conditional-markets/internal/planner"
	"github.com/evand/conditional-markets/internal/server"
	"github.com/evand/conditional-markets/internal/server/handler"
	"github.com/evand/conditional-markets/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown once the root context is
// cancelled.
const shutdownTimeout = 10 * time.Second

// services groups the domain services shared by the application modes.
type services struct {
	markets   *service.MarketService
	plans     *service.PlanService
	reconcile *service.ReconcileService
}

// buildServices constructs the service layer on top of the wired
// dependencies. Every mode uses the same construction; modes differ only in
// which services they run and expose.
func (a *App) buildServices(deps *Dependencies) *services {
	markets := service.NewMarketService(
		deps.Gamma, deps.MarketStore, deps.MarketCache,
		a.cfg.Engine.MaxTrackedMarkets, a.logger,
	)
	pl := planner.New(a.cfg.Engine.MinStake, a.logger)
	plans := service.NewPlanService(
		markets, deps.Provider, pl, deps.PlanStore, deps.PoolCache,
		deps.Notifier, a.logger,
	)
	rec := service.NewReconcileService(
		deps.PlanStore, deps.ReportStore, markets, deps.AMM,
		deps.LockManager, deps.Notifier,
		a.cfg.Engine.SingleLegTolerancePct, a.cfg.Engine.MultiLegTolerancePct,
		a.logger,
	)
	return &services{markets: markets, plans: plans, reconcile: rec}
}

// newMonitor constructs the live monitoring service (market sync loop plus
// the venue feed).
func (a *App) newMonitor(deps *Dependencies, svcs *services) *service.MonitorService {
	return service.NewMonitorService(
		svcs.markets, deps.Provider, deps.PoolCache, deps.PriceCache,
		a.cfg.Venue.WsHost, a.cfg.Engine.SyncInterval.Duration, a.logger,
	)
}

// startHTTPServer registers the API handlers, starts the HTTP server on the
// errgroup, and installs a goroutine that drains it gracefully when ctx is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	pingers := map[string]handler.Pinger{
		"postgres": deps.PG,
		"redis":    deps.Redis,
	}
	if deps.S3 != nil {
		pingers["s3"] = deps.S3
	}
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(pingers, a.logger),
		Markets:   handler.NewMarketHandler(svcs.markets, a.logger),
		Plans:     handler.NewPlanHandler(svcs.plans, a.logger),
		Reconcile: handler.NewReconcileHandler(svcs.reconcile, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// ServeMode runs the HTTP API backed by live market monitoring. Plans are
// built on demand through the API; pools stay fresh through the feed.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.newMonitor(deps, svcs).Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// MonitorMode runs market sync and the live feed without the HTTP API. Useful
// as a cache warmer alongside a separate serve instance.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	svcs := a.buildServices(deps)
	return a.newMonitor(deps, svcs).Run(ctx)
}

// SimulateMode builds one plan from the command-line options, prints it, and
// exits. The plan is persisted like any other, so it can be reconciled later.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode",
		slog.String("market", a.opts.Simulate.MarketID),
		slog.String("kind", a.opts.Simulate.Kind),
	)

	req, err := a.opts.Simulate.toPlanRequest(a.cfg.Engine.DefaultBudget)
	if err != nil {
		return err
	}

	svcs := a.buildServices(deps)
	plan, err := svcs.plans.Simulate(ctx, req)
	if err != nil {
		return fmt.Errorf("app: simulate: %w", err)
	}

	notify.RenderPlan(os.Stdout, plan)
	return nil
}

// ReconcileMode reconciles one stored plan against live venue quotes, prints
// the report, and exits. With no plan ID it targets the most recent plan.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	planID := a.opts.Reconcile.PlanID
	if planID == "" {
		recent, err := deps.PlanStore.ListRecent(ctx, 1)
		if err != nil {
			return fmt.Errorf("app: reconcile: find latest plan: %w", err)
		}
		if len(recent) == 0 {
			return fmt.Errorf("app: reconcile: no stored plans; run simulate first")
		}
		planID = recent[0].ID
	}

	a.logger.InfoContext(ctx, "starting reconcile mode", slog.String("plan_id", planID))

	svcs := a.buildServices(deps)
	report, err := svcs.reconcile.Run(ctx, planID)
	if err != nil {
		return fmt.Errorf("app: reconcile plan %s: %w", planID, err)
	}

	notify.RenderReport(os.Stdout, report)
	return nil
}

// FullMode runs everything: the HTTP API, live monitoring, and (when enabled)
// the periodic archive loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.newMonitor(deps, svcs).Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archive := service.NewArchiveService(
			deps.Archiver, a.cfg.Archive.RetentionDays,
			a.cfg.Archive.Interval.Duration, a.logger,
		)
		g.Go(func() error {
			return archive.Run(ctx)
		})
	}

	return g.Wait()
}
