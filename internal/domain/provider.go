package domain

import "context"

// MarketDataProvider supplies current venue state. The engine tolerates
// partial data: a market whose outcomes cannot all be resolved to pools is
// reported as incomplete rather than priced.
type MarketDataProvider interface {
	// GetMarket returns metadata for a joint market.
	GetMarket(ctx context.Context, id string) (JointMarket, error)
	// GetPools returns the current pool per cell plus the venue's own quoted
	// probabilities, used as a cross-check but never as pricing ground truth.
	GetPools(ctx context.Context, market JointMarket) (PoolSet, map[Cell]float64, error)
}

// QuoteProvider offers the venue's authoritative dry-run evaluation of a
// single market order. Used only by reconciliation.
type QuoteProvider interface {
	// DryRunBuy returns the share count the venue would fill for spending
	// amount on the given outcome side, evaluated server-side at live state.
	DryRunBuy(ctx context.Context, marketID, outcomeID string, side Side, amount float64) (float64, error)
}
