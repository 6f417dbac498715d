// Command condbot is the entry point for the conditional markets client. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/evand/conditional-markets/internal/app"
	"github.com/evand/conditional-markets/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "operating mode override (serve|simulate|reconcile|monitor|full)")

	// Simulate-mode flags.
	var sim app.SimulateOptions
	flag.StringVar(&sim.MarketID, "market", "", "joint market ID (simulate mode)")
	flag.StringVar(&sim.Kind, "kind", "direct", "plan kind: direct, conditional, marginal, correlation")
	flag.StringVar(&sim.Target, "target", "", "target cell: yes_yes, yes_no, no_yes, or no_no (direct/conditional)")
	flag.StringVar(&sim.Side, "side", "", "YES or NO (direct; defaults to YES)")
	flag.Float64Var(&sim.Budget, "budget", 0, "spend in collateral units (0 = configured default)")
	flag.StringVar(&sim.Condition, "condition", "", "conditioning event, A or B (conditional)")
	flag.Float64Var(&sim.HedgeShares, "hedge-shares", 0, "hedge size in shares, must be > 0 (conditional)")
	flag.StringVar(&sim.MarginalEvent, "marginal-event", "", "event for a marginal position, A or B (marginal)")
	flag.BoolVar(&sim.MarginalHolds, "holds", true, "bet the marginal event holds rather than fails (marginal)")
	flag.StringVar(&sim.Direction, "direction", "", "long (events agree) or short (events disagree) (correlation)")
	flag.Float64Var(&sim.MaxShares, "max-shares", 0, "per-leg share cap, must be > 0 (correlation)")

	// Reconcile-mode flags.
	var rec app.ReconcileOptions
	flag.StringVar(&rec.PlanID, "plan", "", "plan ID to reconcile (reconcile mode; empty = most recent)")

	flag.Parse()

	// Bootstrap logger; replaced once the configured level is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("condbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, app.Options{Simulate: sim, Reconcile: rec}, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("condbot stopped")
}
