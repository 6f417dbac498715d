package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evand/conditional-markets/internal/domain"
)

// poolTTL is short on purpose: snapshots exist for display and monitoring,
// and anything older than this is worse than a fresh fetch.
const poolTTL = 30 * time.Second

// PoolCache implements domain.PoolCache using Redis hashes with JSON-
// serialized snapshots.
//
// Key schema:
//
//	pools:{marketID} - hash with field "data" containing JSON
type PoolCache struct {
	rdb *redis.Client
}

// NewPoolCache creates a PoolCache backed by the given Client.
func NewPoolCache(c *Client) *PoolCache {
	return &PoolCache{rdb: c.Underlying()}
}

func poolKey(marketID string) string { return "pools:" + marketID }

// SetSnapshot stores a pool snapshot with a 30-second TTL.
func (pc *PoolCache) SetSnapshot(ctx context.Context, snap domain.PoolSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal pools %s: %w", snap.MarketID, err)
	}

	key := poolKey(snap.MarketID)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, poolTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set pools %s: %w", snap.MarketID, err)
	}
	return nil
}

// GetSnapshot retrieves the cached pool snapshot for a market.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (pc *PoolCache) GetSnapshot(ctx context.Context, marketID string) (domain.PoolSnapshot, error) {
	data, err := pc.rdb.HGet(ctx, poolKey(marketID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PoolSnapshot{}, domain.ErrNotFound
		}
		return domain.PoolSnapshot{}, fmt.Errorf("redis: get pools %s: %w", marketID, err)
	}

	var snap domain.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("redis: unmarshal pools %s: %w", marketID, err)
	}
	return snap, nil
}

// Invalidate removes the cached snapshot for a market.
func (pc *PoolCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, poolKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pools %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PoolCache = (*PoolCache)(nil)
