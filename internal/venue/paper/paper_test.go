package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

func connected(t *testing.T, cash float64) *Adapter {
	t.Helper()
	a := New(Options{Cash: cash})
	require.True(t, a.Connect(context.Background()))
	return a
}

func marketBuy(symbol string, qty float64) domain.OrderRequest {
	return domain.OrderRequest{Symbol: symbol, Quantity: qty, Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, TimeInForce: domain.TimeInForceDay}
}

func TestPlaceMarketOrderFills(t *testing.T) {
	ctx := context.Background()
	a := connected(t, 10_000)
	a.SetPrice("AAPL", 100)

	o, err := a.PlaceOrder(ctx, marketBuy("AAPL", 10))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 100.0, o.FilledPrice)
	require.NotNil(t, o.FilledAt)

	positions, err := a.Positions(ctx)
	require.NoError(t, err)
	require.Contains(t, positions, "AAPL")
	assert.Equal(t, 10.0, positions["AAPL"].Quantity)
	assert.Equal(t, domain.PositionSideLong, positions["AAPL"].Side)

	a.SetPrice("AAPL", 110)
	acct, err := a.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9_000, acct.Cash, 1e-9)
	assert.InDelta(t, 10_100, acct.Equity, 1e-9)
}

func TestPlaceOrderRejections(t *testing.T) {
	ctx := context.Background()
	a := New(Options{Cash: 1000})

	_, err := a.PlaceOrder(ctx, marketBuy("AAPL", 0))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)

	_, err = a.PlaceOrder(ctx, marketBuy("AAPL", 1))
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	require.True(t, a.Connect(ctx))
	o, err := a.PlaceOrder(ctx, marketBuy("AAPL", 1))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Equal(t, domain.OrderStatusRejected, o.Status)

	a.SetPrice("AAPL", 500)
	_, err = a.PlaceOrder(ctx, marketBuy("AAPL", 3))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestPlaceOrderIdempotentByClientID(t *testing.T) {
	ctx := context.Background()
	a := connected(t, 10_000)
	a.SetPrice("MSFT", 50)

	req := marketBuy("MSFT", 2)
	req.ClientOrderID = "cid-1"
	first, err := a.PlaceOrder(ctx, req)
	require.NoError(t, err)
	second, err := a.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	positions, _ := a.Positions(ctx)
	assert.Equal(t, 2.0, positions["MSFT"].Quantity)
}

func TestClosingRealizesPnL(t *testing.T) {
	ctx := context.Background()
	a := connected(t, 10_000)
	a.Seed("AAPL", domain.PositionSideLong, 10, 100, time.Now())
	a.SetPrice("AAPL", 105)

	o, err := a.PlaceOrder(ctx, domain.OrderRequest{Symbol: "AAPL", Quantity: 10, Side: domain.OrderSideSell, Type: domain.OrderTypeMarket})
	require.NoError(t, err)
	assert.InDelta(t, 50, o.RealizedPnL, 1e-9)

	positions, _ := a.Positions(ctx)
	assert.Empty(t, positions)
}

func TestRestingStopTriggers(t *testing.T) {
	ctx := context.Background()
	a := connected(t, 10_000)
	a.Seed("AAPL", domain.PositionSideLong, 10, 100, time.Now())

	stop, err := a.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: "AAPL", Quantity: 10, Side: domain.OrderSideSell,
		Type: domain.OrderTypeStop, TimeInForce: domain.TimeInForceGTC, StopPrice: domain.Float64Ptr(98),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, stop.Status)

	open, err := a.Orders(ctx, venue.OrdersOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	a.SetPrice("AAPL", 99)
	got, _ := a.Order(ctx, stop.ID)
	assert.Equal(t, domain.OrderStatusSubmitted, got.Status)

	a.SetPrice("AAPL", 97.5)
	got, _ = a.Order(ctx, stop.ID)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.InDelta(t, -25, got.RealizedPnL, 1e-9)

	positions, _ := a.Positions(ctx)
	assert.Empty(t, positions)
}

func TestOrphanStopExpires(t *testing.T) {
	ctx := context.Background()
	a := connected(t, 10_000)
	a.SeedOrder(domain.Order{
		Symbol: "AAPL", Quantity: 5, Side: domain.OrderSideSell, Type: domain.OrderTypeStop,
		StopPrice: domain.Float64Ptr(90), Status: domain.OrderStatusSubmitted,
	})
	a.SetPrice("AAPL", 80)

	positions, _ := a.Positions(ctx)
	assert.Empty(t, positions)
	closed, _ := a.Orders(ctx, venue.OrdersClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.OrderStatusCancelled, closed[0].Status)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	a := connected(t, 10_000)
	o, err := a.PlaceOrder(ctx, domain.OrderRequest{
		Symbol: "AAPL", Quantity: 1, Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, LimitPrice: domain.Float64Ptr(90),
	})
	require.NoError(t, err)
	assert.True(t, a.CancelOrder(ctx, o.ID))
	assert.False(t, a.CancelOrder(ctx, o.ID))
	assert.False(t, a.CancelOrder(ctx, "missing"))

	_, err = a.Order(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	a := connected(t, 1000)
	a.SetPrice("EURUSD", 1.1)

	a.FailNext(OpPrice, 1)
	_, err := a.CurrentPrice(ctx, "EURUSD")
	assert.ErrorIs(t, err, domain.ErrConnection)
	px, err := a.CurrentPrice(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1, px)

	_, err = a.CurrentPrice(ctx, "GBPUSD")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	a.FailNext(OpConnect, 1)
	assert.False(t, a.Connect(ctx))
	assert.True(t, a.Connect(ctx))
}

type fixedQuotes struct{ price float64 }

func (q fixedQuotes) Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	return []domain.Bar{{Close: q.price}}, nil
}

func (q fixedQuotes) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return q.price, nil
}

func TestCandlesAndQuotesFallback(t *testing.T) {
	ctx := context.Background()
	a := New(Options{Quotes: fixedQuotes{price: 42}})
	tf := domain.Timeframe{N: 1, Unit: domain.TimeUnitDay}

	bars := make([]domain.Bar, 5)
	for i := range bars {
		bars[i] = domain.Bar{Close: float64(i + 1)}
	}
	a.SetBars("AAPL", bars)
	got, err := a.Candles(ctx, "AAPL", tf, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 5.0, got[2].Close)

	px, err := a.CurrentPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5.0, px)

	got, err = a.Candles(ctx, "MSFT", tf, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	px, err = a.CurrentPrice(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 42.0, px)
}
