package alpaca

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

func testAdapter(t *testing.T, h http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{
		BaseURL:    srv.URL,
		DataURL:    srv.URL,
		KeyID:      "key",
		Secret:     "secret",
		Timeout:    2 * time.Second,
		RatePerMin: 60_000,
		Retry:      venue.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Multiplier: 1},
	})
	return New(client, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestConnectAndAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/account", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		writeJSON(w, 200, map[string]any{
			"status": "ACTIVE", "currency": "USD",
			"cash": "25000.50", "equity": "100000", "buying_power": "50000", "multiplier": "2",
		})
	})
	a := testAdapter(t, mux)
	ctx := context.Background()

	require.True(t, a.Connect(ctx))
	assert.True(t, a.Connected())

	acct, err := a.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, acct.Equity)
	assert.Equal(t, 25000.5, acct.Cash)
	assert.Equal(t, 2.0, acct.Leverage)
}

func TestConnectUnauthorizedReportsFalse(t *testing.T) {
	var calls atomic.Int32
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "forbidden"})
	}))
	assert.False(t, a.Connect(context.Background()))
	assert.False(t, a.Connected())
	// Auth failures are not retried.
	assert.Equal(t, int32(1), calls.Load())
}

func TestReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/orders" {
			writeJSON(w, 200, []any{})
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, 200, []map[string]any{
			{"symbol": "AAPL", "side": "long", "qty": "10", "avg_entry_price": "150", "current_price": "155", "market_value": "1550", "unrealized_pl": "50"},
			{"symbol": "TSLA", "side": "short", "qty": "-5", "avg_entry_price": "200", "current_price": "190", "market_value": "-950", "unrealized_pl": "50"},
		})
	}))
	ps, err := a.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, ps, 2)
	assert.Equal(t, domain.PositionSideLong, ps["AAPL"].Side)
	assert.Equal(t, 10.0, ps["AAPL"].Quantity)
	assert.Equal(t, domain.PositionSideShort, ps["TSLA"].Side)
	assert.Equal(t, 5.0, ps["TSLA"].Quantity)
	assert.Equal(t, 950.0, ps["TSLA"].MarketValue)
}

func TestPlaceOrderRejectsNonPositiveQuantity(t *testing.T) {
	var calls atomic.Int32
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{Symbol: "AAPL", Quantity: -1, Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket})
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Equal(t, int32(0), calls.Load())
}

func TestPlaceOrderRetryChecksExistence(t *testing.T) {
	var posts, lookups atomic.Int32
	var clientID string
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		posts.Add(1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		clientID, _ = body["client_order_id"].(string)
		assert.Equal(t, "10", body["qty"])
		// The venue accepted the order but the response was lost.
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/v2/orders:by_client_order_id", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		assert.Equal(t, clientID, r.URL.Query().Get("client_order_id"))
		writeJSON(w, 200, map[string]any{
			"id": "venue-1", "client_order_id": clientID, "symbol": "AAPL", "side": "buy",
			"type": "market", "time_in_force": "day", "qty": "10", "filled_qty": "10",
			"filled_avg_price": "150.25", "limit_price": nil, "stop_price": nil, "status": "filled",
		})
	})
	a := testAdapter(t, mux)

	o, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "AAPL", Quantity: 10, Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Strategy: "sma_cross",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), posts.Load())
	assert.Equal(t, int32(1), lookups.Load())
	assert.Equal(t, "venue-1", o.ID)
	assert.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 150.25, o.FilledPrice)
	assert.Nil(t, o.LimitPrice)
	assert.Equal(t, "sma_cross", o.Strategy)
}

func TestPlaceOrderVenueRejection(t *testing.T) {
	var posts atomic.Int32
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 42210000, "message": "insufficient buying power"})
	}))
	_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{Symbol: "AAPL", Quantity: 1, Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Contains(t, err.Error(), "insufficient buying power")
	assert.Equal(t, int32(1), posts.Load())
}

func TestPositionsCarryOpeningFillTime(t *testing.T) {
	opened := time.Date(2026, 3, 2, 14, 35, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, []map[string]any{
			{"symbol": "AAPL", "side": "long", "qty": "10", "avg_entry_price": "150", "current_price": "155", "market_value": "1550", "unrealized_pl": "50"},
			{"symbol": "TSLA", "side": "short", "qty": "-5", "avg_entry_price": "200", "current_price": "190", "market_value": "-950", "unrealized_pl": "50"},
		})
	})
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "closed", q.Get("status"))
		assert.Equal(t, "desc", q.Get("direction"))
		assert.Equal(t, "AAPL,TSLA", q.Get("symbols"))
		writeJSON(w, 200, []map[string]any{
			// A later sell that trimmed the long does not re-date it.
			{"id": "3", "symbol": "AAPL", "side": "sell", "qty": "2", "filled_qty": "2", "status": "filled", "filled_at": opened.Add(2 * time.Hour)},
			{"id": "2", "symbol": "AAPL", "side": "buy", "qty": "10", "filled_qty": "10", "status": "filled", "filled_at": opened},
			{"id": "1", "symbol": "AAPL", "side": "buy", "qty": "4", "filled_qty": "0", "status": "canceled", "filled_at": nil},
		})
	})
	a := testAdapter(t, mux)

	positions, err := a.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.True(t, positions["AAPL"].OpenedAt.Equal(opened))
	assert.Equal(t, domain.PositionSideShort, positions["TSLA"].Side)
	assert.Equal(t, 5.0, positions["TSLA"].Quantity)
	assert.True(t, positions["TSLA"].OpenedAt.IsZero(), "no opening sell on record")
}

func TestCandlesNewestLast(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/AAPL/bars", r.URL.Path)
		assert.Equal(t, "15Min", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort"))
		writeJSON(w, 200, map[string]any{"symbol": "AAPL", "bars": []map[string]any{
			{"t": "2024-03-13T15:00:00Z", "o": 2, "h": 2, "l": 2, "c": 2, "v": 100},
			{"t": "2024-03-13T14:45:00Z", "o": 1, "h": 1, "l": 1, "c": 1, "v": 100},
		}})
	}))
	bars, err := a.Candles(context.Background(), "AAPL", domain.Timeframe{N: 15, Unit: domain.TimeUnitMinute}, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.0, bars[0].Close)
	assert.Equal(t, 2.0, bars[1].Close)
}

func TestCurrentPriceFallsBackToMinuteBar(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/stocks/MSFT/trades/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	})
	mux.HandleFunc("/v2/stocks/MSFT/bars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1Min", r.URL.Query().Get("timeframe"))
		writeJSON(w, 200, map[string]any{"bars": []map[string]any{{"t": "2024-03-13T15:00:00Z", "c": 410.5}}})
	})
	a := testAdapter(t, mux)
	px, err := a.CurrentPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 410.5, px)
}

func TestClock(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"is_open": true, "next_open": "2024-03-14T09:30:00-04:00", "next_close": "2024-03-13T16:00:00-04:00",
		})
	}))
	open, err := a.IsMarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)

	nextOpen, nextClose, err := a.NextOpenClose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, nextOpen.Day())
	assert.True(t, nextClose.Before(nextOpen))
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, domain.OrderStatusSubmitted, mapStatus("partially_filled"))
	assert.Equal(t, domain.OrderStatusSubmitted, mapStatus("new"))
	assert.Equal(t, domain.OrderStatusFilled, mapStatus("filled"))
	assert.Equal(t, domain.OrderStatusCancelled, mapStatus("expired"))
	assert.Equal(t, domain.OrderStatusRejected, mapStatus("rejected"))
}
