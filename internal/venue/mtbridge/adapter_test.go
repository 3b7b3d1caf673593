package mtbridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
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
		APIKey:     "k",
		Account:    "1001",
		Timeout:    2 * time.Second,
		RatePerMin: 60_000,
		Retry:      venue.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Multiplier: 1},
	})
	return New(client, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestConnect(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/connect", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "1001", r.URL.Query().Get("account"))
		writeJSON(w, map[string]any{"connected": true})
	}))
	assert.True(t, a.Connect(context.Background()))
	assert.True(t, a.Connected())
}

func TestConnectBridgeErrorReportsFalse(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"error": "terminal not logged in"})
	}))
	assert.False(t, a.Connect(context.Background()))
}

func TestCurrentPriceIsMid(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EURUSD", r.URL.Query().Get("symbol"))
		writeJSON(w, map[string]any{"tick": map[string]any{"bid": 1.0850, "ask": 1.0852}})
	}))
	px, err := a.CurrentPrice(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 1.0851, px, 1e-9)
}

func TestCandlesUsesMTPeriod(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "240", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		writeJSON(w, map[string]any{"rates": []map[string]any{
			{"time": 1710000000, "open": 1.1, "high": 1.2, "low": 1.0, "close": 1.15, "tick_volume": 320},
			{"time": 1710014400, "open": 1.15, "high": 1.25, "low": 1.1, "close": 1.2, "tick_volume": 410},
		}})
	}))
	bars, err := a.Candles(context.Background(), "EURUSD", domain.Timeframe{N: 4, Unit: domain.TimeUnitHour}, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.2, bars[1].Close)
	assert.Equal(t, int64(1710014400), bars[1].Time.Unix())
}

func TestCandlesBridgeErrorIsNoData(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"error": "unknown symbol"})
	}))
	bars, err := a.Candles(context.Background(), "XXXYYY", domain.Timeframe{N: 15, Unit: domain.TimeUnitMinute}, 10)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestPositionsNetTickets(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"positions": []map[string]any{
			{"ticket": 1, "symbol": "EURUSD", "type": 0, "volume": 0.3, "open_price": 1.08, "price_current": 1.09, "profit": 30, "open_time": 1710000000},
			{"ticket": 2, "symbol": "EURUSD", "type": 1, "volume": 0.1, "open_price": 1.10, "price_current": 1.09, "profit": 10, "open_time": 1710000100},
			{"ticket": 3, "symbol": "GBPUSD", "type": 1, "volume": 0.2, "open_price": 1.27, "price_current": 1.26, "profit": 20, "open_time": 1710000200},
		}})
	}))
	ps, err := a.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)

	eur := ps["EURUSD"]
	assert.Equal(t, domain.PositionSideLong, eur.Side)
	assert.InDelta(t, 0.2, eur.Quantity, 1e-9)
	assert.InDelta(t, 40, eur.UnrealizedPnL, 1e-9)
	assert.Equal(t, int64(1710000000), eur.OpenedAt.Unix())

	gbp := ps["GBPUSD"]
	assert.Equal(t, domain.PositionSideShort, gbp.Side)
	assert.InDelta(t, 1.27, gbp.EntryPrice, 1e-9)
}

func TestPlaceOrderRetryFindsExistingByComment(t *testing.T) {
	var posts atomic.Int32
	var mu sync.Mutex
	var comment string
	mux := http.NewServeMux()
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			posts.Add(1)
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, opSellStop, body["type"])
			mu.Lock()
			comment, _ = body["comment"].(string)
			mu.Unlock()
			w.WriteHeader(http.StatusGatewayTimeout)
		case http.MethodGet:
			writeJSON(w, map[string]any{"order": map[string]any{
				"ticket": 77, "symbol": "EURUSD", "type": opSellStop, "volume": 0.1, "open_price": 1.07, "status": "pending",
			}})
		}
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		c := comment
		mu.Unlock()
		writeJSON(w, map[string]any{"orders": []map[string]any{
			{"ticket": 77, "symbol": "EURUSD", "type": opSellStop, "volume": 0.1, "open_price": 1.07, "status": "pending", "comment": c},
		}})
	})
	a := testAdapter(t, mux)

	o, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "EURUSD", Quantity: 0.1, Side: domain.OrderSideSell,
		Type: domain.OrderTypeStop, StopPrice: domain.Float64Ptr(1.07),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), posts.Load())
	assert.Equal(t, "77", o.ID)
	assert.Equal(t, domain.OrderStatusSubmitted, o.Status)
	require.NotNil(t, o.StopPrice)
	assert.Equal(t, 1.07, *o.StopPrice)
}

func TestPlaceOrderRejectsStopLimit(t *testing.T) {
	a := testAdapter(t, http.NotFoundHandler())
	_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "EURUSD", Quantity: 1, Side: domain.OrderSideBuy, Type: domain.OrderTypeStopLimit,
		StopPrice: domain.Float64Ptr(1.1), LimitPrice: domain.Float64Ptr(1.1),
	})
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestOrderTypeMapping(t *testing.T) {
	for code := opBuy; code <= opSellStop; code++ {
		side, typ := fromMTType(code)
		back, err := mtOrderType(side, typ)
		require.NoError(t, err)
		assert.Equal(t, code, back)
	}
}

func TestPeriod(t *testing.T) {
	cases := map[string]int{"1Min": 1, "5Min": 5, "15Min": 15, "30Min": 30, "1Hour": 60, "4Hour": 240, "1Day": 1440, "1Week": 10080}
	for in, want := range cases {
		tf, err := domain.ParseTimeframe(in)
		require.NoError(t, err)
		assert.Equal(t, want, period(tf), in)
	}
}

func TestMarketHoursFromCalendar(t *testing.T) {
	a := testAdapter(t, http.NotFoundHandler())
	a.now = func() time.Time { return time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC) } // Saturday
	open, err := a.IsMarketOpen(context.Background())
	require.NoError(t, err)
	assert.False(t, open)

	a.now = func() time.Time { return time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC) }
	open, err = a.IsMarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}
