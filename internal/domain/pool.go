package domain

import "time"

// Pool is the pair of opposing-side reserves backing one outcome's AMM price.
// Both reserves must stay strictly positive; a trade that would drive a
// reserve to zero or below is infeasible, never clamped.
type Pool struct {
	YesReserve float64
	NoReserve  float64
}

// Valid reports whether both reserves are strictly positive and finite.
func (p Pool) Valid() bool {
	return p.YesReserve > 0 && p.NoReserve > 0 &&
		p.YesReserve < 1e18 && p.NoReserve < 1e18
}

// PoolSet maps each of the four cells to its outcome pool. It is a snapshot:
// planning operations clone it and thread fresh copies through each leg
// rather than mutating shared state.
type PoolSet map[Cell]Pool

// Clone returns an independent copy of the set.
func (s PoolSet) Clone() PoolSet {
	out := make(PoolSet, len(s))
	for c, p := range s {
		out[c] = p
	}
	return out
}

// Validate checks that the set covers exactly the four cells with valid
// pools. A failure here is a data error in the caller, not a priced-in
// financial condition.
func (s PoolSet) Validate() error {
	if len(s) != len(CellOrder) {
		return ErrIncompleteMarket
	}
	for _, c := range CellOrder {
		p, ok := s[c]
		if !ok {
			return ErrIncompleteMarket
		}
		if !p.Valid() {
			return ErrInvalidPool
		}
	}
	return nil
}

// PoolSnapshot is a timestamped PoolSet as fetched from the venue, used by
// the monitor/display paths. Planning always starts from a fresh fetch.
type PoolSnapshot struct {
	MarketID  string
	Pools     PoolSet
	FetchedAt time.Time
}
