// Package venue defines the brokerage capability interface every venue
// implements, and the registry that owns the configured venues and the
// single active selection.
package venue

import (
	"context"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// OrderQuery selects resting or historical orders.
type OrderQuery string

const (
	OrdersOpen   OrderQuery = "open"
	OrdersClosed OrderQuery = "closed"
)

// Adapter is the capability set of one brokerage venue. Implementations
// apply a per-call timeout and a bounded retry to every network call, and
// never resubmit an order unless they can prove the first attempt did not
// reach the venue.
type Adapter interface {
	// Connect is idempotent and reports connectivity. Auth and network
	// failures yield false, never a panic.
	Connect(ctx context.Context) bool
	Disconnect(ctx context.Context) error
	Connected() bool

	Account(ctx context.Context) (domain.AccountSnapshot, error)
	Positions(ctx context.Context) (map[string]domain.Position, error)

	// PlaceOrder rejects quantities <= 0 with domain.ErrOrderRejected.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, id string) bool
	Order(ctx context.Context, id string) (domain.Order, error)
	Orders(ctx context.Context, q OrderQuery) ([]domain.Order, error)

	// Candles returns bars oldest first. An empty slice with a nil error
	// means the venue has no data, which is not a failure.
	Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error)
	// CurrentPrice returns domain.ErrDataUnavailable when no price exists.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	IsMarketOpen(ctx context.Context) (bool, error)
	NextOpenClose(ctx context.Context) (open, close time.Time, err error)

	PlatformName() string
	PlatformType() domain.VenueType
	// Live is false for paper and simulated venues.
	Live() bool
}
