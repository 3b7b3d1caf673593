package domain

import (
	"fmt"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style requested from the venue.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce indicates how long a resting order stays live.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// OrderRequest is the input to Adapter.PlaceOrder. ClientOrderID doubles as
// the idempotency key for retried submissions.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Quantity      float64
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce
	LimitPrice    *float64
	StopPrice     *float64
	Strategy      string
	SignalID      string
}

// Validate rejects requests no venue could accept. Quantities are never
// clamped.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: %w: empty symbol", ErrOrderRejected, ErrInvalidOrder)
	}
	if !(r.Quantity > 0) {
		return fmt.Errorf("%w: %w: quantity %v must be positive", ErrOrderRejected, ErrInvalidOrder, r.Quantity)
	}
	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return fmt.Errorf("%w: %w: unknown side %q", ErrOrderRejected, ErrInvalidOrder, r.Side)
	}
	switch r.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if r.LimitPrice == nil || *r.LimitPrice <= 0 {
			return fmt.Errorf("%w: %w: limit order needs a positive limit price", ErrOrderRejected, ErrInvalidOrder)
		}
	case OrderTypeStop:
		if r.StopPrice == nil || *r.StopPrice <= 0 {
			return fmt.Errorf("%w: %w: stop order needs a positive stop price", ErrOrderRejected, ErrInvalidOrder)
		}
	case OrderTypeStopLimit:
		if r.StopPrice == nil || r.LimitPrice == nil {
			return fmt.Errorf("%w: %w: stop_limit order needs stop and limit prices", ErrOrderRejected, ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: %w: unknown type %q", ErrOrderRejected, ErrInvalidOrder, r.Type)
	}
	return nil
}

// Order is a venue-acknowledged order. Once Status is terminal the value is
// never changed again.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	TimeInForce    TimeInForce
	Quantity       float64
	FilledQuantity float64
	FilledPrice    float64
	LimitPrice     *float64
	StopPrice      *float64
	Status         OrderStatus
	Venue          string
	Strategy       string
	SignalID       string
	RealizedPnL    float64
	SubmittedAt    time.Time
	UpdatedAt      time.Time
	FilledAt       *time.Time
}

// IsProtective reports whether the order caps loss for a position that is
// closed by side.
func (o Order) IsProtective(side OrderSide) bool {
	return o.Side == side && (o.Type == OrderTypeStop || o.Type == OrderTypeStopLimit)
}

// IsTakeProfit reports whether the order is a resting limit on the closing side.
func (o Order) IsTakeProfit(side OrderSide) bool {
	return o.Side == side && o.Type == OrderTypeLimit && o.LimitPrice != nil
}

// Float64Ptr is a small helper for optional price fields.
func Float64Ptr(v float64) *float64 { return &v }
