package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidPool      = errors.New("pool reserve must be positive")
	ErrInvalidCell      = errors.New("unknown outcome cell")
	ErrIncompleteMarket = errors.New("market is missing outcome data")
	ErrQuoteUnavailable = errors.New("dry-run quote unavailable")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
	ErrWSDisconnect     = errors.New("websocket disconnected")
)
