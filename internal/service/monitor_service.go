package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/feed"
	"github.com/evand/conditional-markets/internal/metrics"
	"github.com/evand/conditional-markets/internal/platform/polymarket"
)

// MonitorService keeps the local view of tracked markets warm: it re-syncs
// metadata on an interval, refreshes pool snapshots from the venue, and
// applies live WebSocket updates to the pool and price caches.
type MonitorService struct {
	markets    *MarketService
	pools      PoolFetcher
	poolCache  domain.PoolCache
	priceCache domain.PriceCache
	wsURL      string
	interval   time.Duration
	logger     *slog.Logger
}

// NewMonitorService creates a MonitorService.
func NewMonitorService(
	markets *MarketService,
	pools PoolFetcher,
	poolCache domain.PoolCache,
	priceCache domain.PriceCache,
	wsURL string,
	interval time.Duration,
	logger *slog.Logger,
) *MonitorService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &MonitorService{
		markets:    markets,
		pools:      pools,
		poolCache:  poolCache,
		priceCache: priceCache,
		wsURL:      wsURL,
		interval:   interval,
		logger:     logger.With(slog.String("component", "monitor")),
	}
}

// Run performs an initial sync, then runs the periodic refresh loop and the
// live feed until ctx is cancelled.
func (s *MonitorService) Run(ctx context.Context) error {
	if _, err := s.markets.Sync(ctx); err != nil {
		s.logger.WarnContext(ctx, "monitor: initial sync failed",
			slog.String("error", err.Error()),
		)
	}
	s.refreshSnapshots(ctx)

	tracked, err := s.markets.ListActive(ctx, domain.ListOpts{Limit: 500})
	if err != nil {
		return err
	}
	tokenIDs := outcomeTokens(tracked)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.refreshLoop(ctx)
	})

	g.Go(func() error {
		pf := feed.NewPoolFeed(s.wsURL, tokenIDs, s.handlePoolUpdate, s.handlePriceUpdate, s.logger)
		defer pf.Close()
		return pf.Run(ctx)
	})

	return g.Wait()
}

// refreshLoop re-syncs metadata and pool snapshots every interval.
func (s *MonitorService) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.markets.Sync(ctx); err != nil {
				s.logger.WarnContext(ctx, "monitor: sync failed",
					slog.String("error", err.Error()),
				)
			}
			s.refreshSnapshots(ctx)
		}
	}
}

// refreshSnapshots fetches fresh pool state for every tracked market. These
// snapshots serve display and monitoring only; planning always re-fetches.
func (s *MonitorService) refreshSnapshots(ctx context.Context) {
	markets, err := s.markets.ListActive(ctx, domain.ListOpts{Limit: 500})
	if err != nil {
		s.logger.WarnContext(ctx, "monitor: list markets failed",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, m := range markets {
		pools, _, err := s.pools.GetPools(ctx, m)
		if err != nil {
			metrics.PoolFetchesTotal.WithLabelValues("error").Inc()
			s.logger.DebugContext(ctx, "monitor: pool fetch failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.PoolFetchesTotal.WithLabelValues("ok").Inc()

		snap := domain.PoolSnapshot{
			MarketID:  m.ID,
			Pools:     pools,
			FetchedAt: time.Now().UTC(),
		}
		if err := s.poolCache.SetSnapshot(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "monitor: snapshot cache failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// handlePoolUpdate resolves the update's token-keyed reserves to cells and
// stores a fresh snapshot. Updates that do not cover all four outcomes are
// dropped; a partial snapshot is worse than a stale one.
func (s *MonitorService) handlePoolUpdate(ctx context.Context, update polymarket.PoolUpdate) {
	market, err := s.markets.GetMarket(ctx, update.MarketID)
	if err != nil {
		s.logger.DebugContext(ctx, "monitor: pool update for unknown market",
			slog.String("market_id", update.MarketID),
		)
		return
	}

	pools := make(domain.PoolSet, len(domain.CellOrder))
	for _, o := range market.Outcomes {
		pool, ok := update.Reserves[o.TokenID]
		if !ok {
			return
		}
		pools[o.Cell] = pool
	}

	snap := domain.PoolSnapshot{
		MarketID:  market.ID,
		Pools:     pools,
		FetchedAt: update.Timestamp,
	}
	if err := s.poolCache.SetSnapshot(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "monitor: snapshot cache failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}
}

// handlePriceUpdate records the venue's quoted price for one outcome token.
func (s *MonitorService) handlePriceUpdate(ctx context.Context, update polymarket.PriceUpdate) {
	if err := s.priceCache.SetPrice(ctx, update.TokenID, update.Price, update.Timestamp); err != nil {
		s.logger.WarnContext(ctx, "monitor: price cache failed",
			slog.String("token_id", update.TokenID),
			slog.String("error", err.Error()),
		)
	}
}

// outcomeTokens flattens the outcome token IDs of the given markets.
func outcomeTokens(markets []domain.JointMarket) []string {
	tokens := make([]string, 0, len(markets)*len(domain.CellOrder))
	for _, m := range markets {
		for _, o := range m.Outcomes {
			if o.TokenID != "" {
				tokens = append(tokens, o.TokenID)
			}
		}
	}
	return tokens
}
