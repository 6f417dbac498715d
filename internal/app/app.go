// Package app provides the top-level application lifecycle for the
// conditional markets client. It wires together all dependencies (stores,
// caches, blob storage, venue clients, services, notifications) and starts
// the goroutines for the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evand/conditional-markets/internal/config"
	"github.com/evand/conditional-markets/internal/domain"
)

// SimulateOptions carries the one-shot simulation request built from command
// line flags. Only read in simulate mode.
type SimulateOptions struct {
	MarketID      string
	Kind          string
	Target        string
	Side          string
	Budget        float64
	Condition     string
	HedgeShares   float64
	MarginalEvent string
	MarginalHolds bool
	Direction     string
	MaxShares     float64
}

// ReconcileOptions carries the reconcile-mode target. When PlanID is empty
// the most recent plan is reconciled.
type ReconcileOptions struct {
	PlanID string
}

// Options bundles the mode-specific command line inputs.
type Options struct {
	Simulate  SimulateOptions
	Reconcile ReconcileOptions
}

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, opts Options, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "simulate":
		return a.SimulateMode(ctx, deps)
	case "reconcile":
		return a.ReconcileMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// toPlanRequest validates simulate-mode flags and converts them into a domain
// request, applying the configured default budget when none was given.
// Validation matches the HTTP plan handler: unknown cells, events, and
// directions are rejected here rather than silently coerced downstream.
func (o SimulateOptions) toPlanRequest(defaultBudget float64) (domain.PlanRequest, error) {
	budget := o.Budget
	if budget <= 0 {
		budget = defaultBudget
	}

	req := domain.PlanRequest{
		Kind:     domain.PlanKind(o.Kind),
		MarketID: o.MarketID,
		Budget:   budget,
	}
	if o.MarketID == "" {
		return req, fmt.Errorf("app: -market is required for simulate mode")
	}

	switch req.Kind {
	case domain.PlanDirect:
		target := domain.Cell(strings.ToLower(o.Target))
		if !target.Valid() {
			return req, fmt.Errorf("app: -target must be one of yes_yes, yes_no, no_yes, no_no, got %q", o.Target)
		}
		req.Target = target
		req.Side = domain.SideYes
		if o.Side != "" {
			side := domain.Side(strings.ToUpper(o.Side))
			if side != domain.SideYes && side != domain.SideNo {
				return req, fmt.Errorf("app: -side must be YES or NO, got %q", o.Side)
			}
			req.Side = side
		}
	case domain.PlanConditional:
		target := domain.Cell(strings.ToLower(o.Target))
		if !target.Valid() {
			return req, fmt.Errorf("app: -target must be one of yes_yes, yes_no, no_yes, no_no, got %q", o.Target)
		}
		cond := domain.Event(strings.ToUpper(o.Condition))
		if cond != domain.EventA && cond != domain.EventB {
			return req, fmt.Errorf("app: -condition must be A or B, got %q", o.Condition)
		}
		if o.HedgeShares <= 0 {
			return req, fmt.Errorf("app: -hedge-shares must be > 0")
		}
		req.Target = target
		req.Condition = cond
		req.HedgeShares = o.HedgeShares
	case domain.PlanMarginal:
		ev := domain.Event(strings.ToUpper(o.MarginalEvent))
		if ev != domain.EventA && ev != domain.EventB {
			return req, fmt.Errorf("app: -marginal-event must be A or B, got %q", o.MarginalEvent)
		}
		req.MarginalEvent = ev
		req.MarginalHolds = o.MarginalHolds
	case domain.PlanCorrelation:
		dir := domain.CorrelationDirection(strings.ToLower(o.Direction))
		if dir != domain.CorrelationLong && dir != domain.CorrelationShort {
			return req, fmt.Errorf("app: -direction must be long or short, got %q", o.Direction)
		}
		if o.MaxShares <= 0 {
			return req, fmt.Errorf("app: -max-shares must be > 0")
		}
		req.Direction = dir
		req.MaxShares = o.MaxShares
	default:
		return req, fmt.Errorf("app: unknown plan kind %q", o.Kind)
	}

	return req, nil
}
