package domain

import "time"

// Event identifies one of the two binary events whose conjunctions make up a
// joint market.
type Event string

const (
	EventA Event = "A"
	EventB Event = "B"
)

// Cell identifies one of the four mutually-exclusive outcomes of a 2x2 joint
// market. The first coordinate is event A, the second event B.
type Cell string

const (
	CellYesYes Cell = "yes_yes" // A and B
	CellYesNo  Cell = "yes_no"  // A and not B
	CellNoYes  Cell = "no_yes"  // not A and B
	CellNoNo   Cell = "no_no"   // neither A nor B
)

// CellOrder is the canonical iteration order for the four cells. Planners and
// stores use it so results are deterministic.
var CellOrder = [4]Cell{CellYesYes, CellYesNo, CellNoYes, CellNoNo}

// CellFor returns the cell matching the given truth values of A and B.
func CellFor(aHolds, bHolds bool) Cell {
	switch {
	case aHolds && bHolds:
		return CellYesYes
	case aHolds:
		return CellYesNo
	case bHolds:
		return CellNoYes
	default:
		return CellNoNo
	}
}

// Valid reports whether c is one of the four known cells.
func (c Cell) Valid() bool {
	switch c {
	case CellYesYes, CellYesNo, CellNoYes, CellNoNo:
		return true
	}
	return false
}

// AHolds reports whether event A occurs in this cell.
func (c Cell) AHolds() bool { return c == CellYesYes || c == CellYesNo }

// BHolds reports whether event B occurs in this cell.
func (c Cell) BHolds() bool { return c == CellYesYes || c == CellNoYes }

// Holds reports whether the given event occurs in this cell.
func (c Cell) Holds(ev Event) bool {
	if ev == EventA {
		return c.AHolds()
	}
	return c.BHolds()
}

// MarginalCells returns the two cells in which the given event has the given
// truth value: the "row" (event A) or "column" (event B) of the 2x2 grid.
func MarginalCells(ev Event, holds bool) [2]Cell {
	var out [2]Cell
	i := 0
	for _, c := range CellOrder {
		if c.Holds(ev) == holds {
			out[i] = c
			i++
		}
	}
	return out
}

// HedgeCells returns the two cells in which the conditioning event of target
// fails. A conditional bet on target given cond hedges these two cells so the
// stake is returned when the condition does not occur.
func HedgeCells(target Cell, cond Event) [2]Cell {
	return MarginalCells(cond, !target.Holds(cond))
}

// ComplementCell returns the cell that shares the target's condition
// coordinate but flips the other event: the outcome that loses a conditional
// bet on target given cond.
func ComplementCell(target Cell, cond Event) Cell {
	if cond == EventA {
		return CellFor(target.AHolds(), !target.BHolds())
	}
	return CellFor(!target.AHolds(), target.BHolds())
}

// Diagonal reports whether the cell lies on the positive-correlation diagonal
// (both events agree).
func (c Cell) Diagonal() bool { return c == CellYesYes || c == CellNoNo }

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// OutcomeRef binds a logical cell to the venue's identifiers for that
// outcome. The cell assignment itself is configured externally; the engine
// treats it as given.
type OutcomeRef struct {
	Cell      Cell
	OutcomeID string
	TokenID   string
	Label     string // venue display label, e.g. "Yes / Yes"
}

// JointMarket is a four-outcome venue market whose outcomes are the
// conjunctions of two binary events.
type JointMarket struct {
	ID        string
	Question  string
	Slug      string
	EventA    string // human label for event A
	EventB    string // human label for event B
	Outcomes  [4]OutcomeRef
	Status    MarketStatus
	Volume    float64
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome returns the outcome reference for the given cell.
func (m JointMarket) Outcome(c Cell) (OutcomeRef, bool) {
	for _, o := range m.Outcomes {
		if o.Cell == c {
			return o, true
		}
	}
	return OutcomeRef{}, false
}

// Complete reports whether every cell has an outcome assigned.
func (m JointMarket) Complete() bool {
	for _, c := range CellOrder {
		if _, ok := m.Outcome(c); !ok {
			return false
		}
	}
	return true
}
