package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/metrics"
)

// MarketFetcher is the slice of the venue metadata API that market sync
// needs. Satisfied by polymarket.GammaClient.
type MarketFetcher interface {
	GetMarkets(ctx context.Context, limit, offset int) ([]domain.JointMarket, error)
	GetMarket(ctx context.Context, id string) (domain.JointMarket, error)
}

// MarketService handles joint-market discovery and metadata sync.
type MarketService struct {
	venue      MarketFetcher
	markets    domain.MarketStore
	cache      domain.MarketCache
	maxTracked int
	logger     *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	venue MarketFetcher,
	markets domain.MarketStore,
	cache domain.MarketCache,
	maxTracked int,
	logger *slog.Logger,
) *MarketService {
	if maxTracked <= 0 {
		maxTracked = 200
	}
	return &MarketService{
		venue:      venue,
		markets:    markets,
		cache:      cache,
		maxTracked: maxTracked,
		logger:     logger,
	}
}

// syncPageSize is how many venue markets one discovery request asks for.
const syncPageSize = 100

// Sync pages through the venue's joint markets, upserts them into the
// persistent store, and invalidates cached entries so subsequent reads pick
// up fresh data. Returns how many markets were upserted.
func (s *MarketService) Sync(ctx context.Context) (int, error) {
	synced := 0

	for offset := 0; synced < s.maxTracked; offset += syncPageSize {
		page, err := s.venue.GetMarkets(ctx, syncPageSize, offset)
		if err != nil {
			return synced, fmt.Errorf("market_service: fetch page at %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		if remaining := s.maxTracked - synced; len(page) > remaining {
			page = page[:remaining]
		}

		if err := s.markets.UpsertBatch(ctx, page); err != nil {
			return synced, fmt.Errorf("market_service: upsert batch: %w", err)
		}

		for _, m := range page {
			if err := s.cache.Invalidate(ctx, m.ID); err != nil {
				s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
				// Non-fatal: the cache will eventually expire on its own.
			}
		}
		synced += len(page)
	}

	if total, err := s.markets.Count(ctx); err == nil {
		metrics.MarketsTracked.Set(float64(total))
	}

	s.logger.InfoContext(ctx, "market_service: synced markets",
		slog.Int("count", synced),
	)
	return synced, nil
}

// GetMarket retrieves a joint market by ID: cache first, then the persistent
// store, then the venue itself. Markets fetched from the venue are stored so
// later reads are local.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.JointMarket, error) {
	// Try the cache first.
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	// Cache miss or error -- fall through to store.
	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		// Unknown locally: ask the venue before giving up.
		m, err = s.venue.GetMarket(ctx, id)
		if err != nil {
			return domain.JointMarket{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
		}
		if upErr := s.markets.Upsert(ctx, m); upErr != nil {
			s.logger.WarnContext(ctx, "market_service: upsert discovered market failed",
				slog.String("market_id", id),
				slog.String("error", upErr.Error()),
			)
		}
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// GetMarketByToken retrieves a joint market by one of its four outcome token
// IDs, checking the cache first and falling back to the persistent store.
func (s *MarketService) GetMarketByToken(ctx context.Context, tokenID string) (domain.JointMarket, error) {
	m, err := s.cache.GetByToken(ctx, tokenID)
	if err == nil {
		return m, nil
	}

	m, err = s.findByToken(ctx, tokenID)
	if err != nil {
		return domain.JointMarket{}, fmt.Errorf("market_service: get by token %q: %w", tokenID, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("token_id", tokenID),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// findByToken scans active markets for one owning the token. The active set
// is bounded by maxTracked, so a linear pass is acceptable; the cache's token
// index makes repeat lookups cheap.
func (s *MarketService) findByToken(ctx context.Context, tokenID string) (domain.JointMarket, error) {
	const page = 200
	for offset := 0; ; offset += page {
		markets, err := s.markets.ListActive(ctx, domain.ListOpts{Limit: page, Offset: offset})
		if err != nil {
			return domain.JointMarket{}, err
		}
		if len(markets) == 0 {
			return domain.JointMarket{}, domain.ErrNotFound
		}
		for _, m := range markets {
			for _, o := range m.Outcomes {
				if o.TokenID == tokenID {
					return m, nil
				}
			}
		}
	}
}

// ListActive returns active joint markets directly from the persistent store.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.JointMarket, error) {
	markets, err := s.markets.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Count returns the total number of joint markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}
