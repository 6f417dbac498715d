// Package feed consumes the venue's WebSocket stream and forwards parsed
// pool and price updates to the monitor path.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evand/conditional-markets/internal/platform/polymarket"
)

// PoolUpdateHandler is called for each full per-market reserve update.
type PoolUpdateHandler func(ctx context.Context, update polymarket.PoolUpdate)

// PriceUpdateHandler is called for each per-token venue price change.
type PriceUpdateHandler func(ctx context.Context, update polymarket.PriceUpdate)

// PoolFeed connects to the venue WebSocket, subscribes to pool_update and
// price_change for the given outcome token IDs, and invokes the provided
// handlers on each message. It reconnects on disconnect.
type PoolFeed struct {
	wsURL     string
	tokenIDs  []string
	onPool    PoolUpdateHandler
	onPrice   PriceUpdateHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewPoolFeed creates a feed that will subscribe to the given token IDs.
func NewPoolFeed(wsURL string, tokenIDs []string, onPool PoolUpdateHandler, onPrice PriceUpdateHandler, logger *slog.Logger) *PoolFeed {
	return &PoolFeed{
		wsURL:    wsURL,
		tokenIDs: tokenIDs,
		onPool:   onPool,
		onPrice:  onPrice,
		logger:   logger.With(slog.String("component", "pool_feed")),
		done:     make(chan struct{}),
	}
}

// Run connects, subscribes for the configured tokens, and runs until ctx is
// cancelled. Reconnects with a short delay on disconnect.
func (f *PoolFeed) Run(ctx context.Context) error {
	if len(f.tokenIDs) == 0 {
		f.logger.Info("no outcome tokens to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("venue ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *PoolFeed) runConnection(ctx context.Context) error {
	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnPoolUpdate(func(update polymarket.PoolUpdate) {
		if f.onPool != nil {
			f.onPool(ctx, update)
		}
	})
	client.OnPriceUpdate(func(update polymarket.PriceUpdate) {
		if f.onPrice != nil {
			f.onPrice(ctx, update)
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	channels := []string{"pool_update", "price_change"}
	if err := client.Subscribe(ctx, channels, f.tokenIDs); err != nil {
		return err
	}
	f.logger.Info("venue ws subscribed", slog.Int("tokens", len(f.tokenIDs)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

// Close stops the feed.
func (f *PoolFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
