package domain

import "time"

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is a venue-confirmed open holding. Quantity is always positive;
// direction is carried by Side.
type Position struct {
	Symbol        string
	Side          PositionSide
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	MarketValue   float64
	UnrealizedPnL float64
	Venue         string
	Strategy      string
	OpenedAt      time.Time
}

// ClosingSide returns the order side that reduces this position.
func (p Position) ClosingSide() OrderSide {
	if p.Side == PositionSideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Notional returns the absolute market value, falling back to
// quantity * current price when the venue did not report one.
func (p Position) Notional() float64 {
	if p.MarketValue != 0 {
		if p.MarketValue < 0 {
			return -p.MarketValue
		}
		return p.MarketValue
	}
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnLPct is the signed return on entry, positive when the
// position is in profit regardless of side.
func (p Position) UnrealizedPnLPct() float64 {
	if p.EntryPrice <= 0 || p.CurrentPrice <= 0 {
		return 0
	}
	pct := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
	if p.Side == PositionSideShort {
		return -pct
	}
	return pct
}
