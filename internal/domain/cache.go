package domain

import (
	"context"
	"time"
)

// MarketCache provides fast joint-market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market JointMarket) error
	Get(ctx context.Context, id string) (JointMarket, error)
	GetByToken(ctx context.Context, tokenID string) (JointMarket, error)
	Invalidate(ctx context.Context, id string) error
}

// PoolCache stores short-lived pool snapshots for display and monitoring.
// Planning never reads from it: every planning operation starts from a fresh
// venue fetch so the snapshot lifecycle stays one-call-deep.
type PoolCache interface {
	SetSnapshot(ctx context.Context, snap PoolSnapshot) error
	GetSnapshot(ctx context.Context, marketID string) (PoolSnapshot, error)
	Invalidate(ctx context.Context, marketID string) error
}

// PriceCache stores the latest venue-quoted price per outcome token, fed by
// the live feed. Display only; pricing derives from reserves.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// LockManager provides distributed locking, used to keep concurrent
// reconciliation runs from quoting the same plan twice.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
