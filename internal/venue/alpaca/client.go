// Package alpaca implements the equities venue against the Alpaca trading
// and market data REST APIs.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

const (
	DefaultBaseURL = "https://paper-api.alpaca.markets"
	DefaultDataURL = "https://data.alpaca.markets"
)

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL    string
	DataURL    string
	KeyID      string
	Secret     string
	Timeout    time.Duration
	RatePerMin int
	Retry      venue.RetryPolicy
}

// Client is a thin REST client for the trading and data APIs. Every call
// waits on the shared rate limiter and runs under the bounded retry policy.
type Client struct {
	trading *resty.Client
	data    *resty.Client
	limiter *rate.Limiter
	retry   venue.RetryPolicy
}

// NewClient creates a Client. Zero values fall back to paper endpoints,
// a 30s timeout and 200 requests per minute.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 200
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = venue.DefaultRetry()
	}

	newResty := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(cfg.Timeout).
			SetHeader("APCA-API-KEY-ID", cfg.KeyID).
			SetHeader("APCA-API-SECRET-KEY", cfg.Secret).
			SetHeader("Accept", "application/json")
	}
	perSec := float64(cfg.RatePerMin) / 60
	return &Client{
		trading: newResty(cfg.BaseURL),
		data:    newResty(cfg.DataURL),
		limiter: rate.NewLimiter(rate.Limit(perSec), max(1, cfg.RatePerMin/60)),
		retry:   cfg.Retry,
	}
}

// do performs one HTTP round trip and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, rc *resty.Client, op, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return venue.Permanent(fmt.Errorf("%s: %w", op, err))
	}
	req := rc.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return venue.Permanent(fmt.Errorf("%s: %w", op, ctx.Err()))
		}
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConnection, err)
	}
	if err := venue.CheckStatus(op, resp.StatusCode(), errorMessage(resp.Body())); err != nil {
		return err
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return venue.Permanent(fmt.Errorf("%s: decode: %w", op, err))
	}
	return nil
}

func errorMessage(body []byte) string {
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// get is a retried, side-effect free request.
func (c *Client) get(ctx context.Context, rc *resty.Client, op, path string, query url.Values, out any) error {
	return venue.Retry(ctx, c.retry, func(int) error {
		return c.do(ctx, rc, op, http.MethodGet, path, query, nil, out)
	})
}

// GetAccount returns the account.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	var a Account
	err := c.get(ctx, c.trading, "alpaca: get account", "/v2/account", nil, &a)
	return a, err
}

// ListPositions returns every open position.
func (c *Client) ListPositions(ctx context.Context) ([]Position, error) {
	var ps []Position
	err := c.get(ctx, c.trading, "alpaca: list positions", "/v2/positions", nil, &ps)
	return ps, err
}

// SubmitOrder places an order. The request must carry a client order id:
// before any retry the client looks the id up and returns the existing
// order instead of posting a second time.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if req.ClientOrderID == "" {
		return Order{}, fmt.Errorf("alpaca: submit order: %w: client order id required", domain.ErrInvalidOrder)
	}
	var o Order
	err := venue.Retry(ctx, c.retry, func(attempt int) error {
		if attempt > 0 {
			existing, err := c.orderByClientID(ctx, req.ClientOrderID)
			switch {
			case err == nil:
				o = existing
				return nil
			case !errors.Is(err, domain.ErrNotFound):
				// Unknown outcome: do not risk a duplicate.
				return err
			}
		}
		return c.do(ctx, c.trading, "alpaca: submit order", http.MethodPost, "/v2/orders", nil, req, &o)
	})
	return o, err
}

func (c *Client) orderByClientID(ctx context.Context, clientID string) (Order, error) {
	var o Order
	q := url.Values{"client_order_id": {clientID}}
	err := c.do(ctx, c.trading, "alpaca: order by client id", http.MethodGet, "/v2/orders:by_client_order_id", q, nil, &o)
	return o, err
}

// GetOrderByClientID looks up an order by its client order id.
func (c *Client) GetOrderByClientID(ctx context.Context, clientID string) (Order, error) {
	var o Order
	err := venue.Retry(ctx, c.retry, func(int) error {
		var err error
		o, err = c.orderByClientID(ctx, clientID)
		return err
	})
	return o, err
}

// GetOrder returns one order by venue id.
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := c.get(ctx, c.trading, "alpaca: get order", "/v2/orders/"+url.PathEscape(id), nil, &o)
	return o, err
}

// ListOrders lists orders with status "open" or "closed", oldest first.
func (c *Client) ListOrders(ctx context.Context, status string, limit int) ([]Order, error) {
	var orders []Order
	q := url.Values{
		"status":    {status},
		"limit":     {strconv.Itoa(limit)},
		"direction": {"asc"},
	}
	err := c.get(ctx, c.trading, "alpaca: list orders", "/v2/orders", q, &orders)
	return orders, err
}

// RecentClosedOrders lists closed orders for symbols, newest first.
func (c *Client) RecentClosedOrders(ctx context.Context, symbols []string, limit int) ([]Order, error) {
	var orders []Order
	q := url.Values{
		"status":    {"closed"},
		"limit":     {strconv.Itoa(limit)},
		"direction": {"desc"},
		"symbols":   {strings.Join(symbols, ",")},
	}
	err := c.get(ctx, c.trading, "alpaca: list closed orders", "/v2/orders", q, &orders)
	return orders, err
}

// CancelOrder cancels an open order. Cancellation is idempotent on the
// venue side so it is retried like a read.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	return venue.Retry(ctx, c.retry, func(int) error {
		return c.do(ctx, c.trading, "alpaca: cancel order", http.MethodDelete, "/v2/orders/"+url.PathEscape(id), nil, nil, nil)
	})
}

// GetClock returns the market clock.
func (c *Client) GetClock(ctx context.Context) (Clock, error) {
	var clk Clock
	err := c.get(ctx, c.trading, "alpaca: get clock", "/v2/clock", nil, &clk)
	return clk, err
}

// GetBars returns up to limit bars ending now, newest last.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, start time.Time, limit int) ([]Bar, error) {
	var resp barsResponse
	q := url.Values{
		"timeframe":  {timeframe},
		"start":      {start.UTC().Format(time.RFC3339)},
		"limit":      {strconv.Itoa(limit)},
		"adjustment": {"raw"},
		"sort":       {"desc"},
	}
	path := "/v2/stocks/" + url.PathEscape(symbol) + "/bars"
	if err := c.get(ctx, c.data, "alpaca: get bars", path, q, &resp); err != nil {
		return nil, err
	}
	bars := resp.Bars
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// LatestTradePrice returns the last trade price for symbol.
func (c *Client) LatestTradePrice(ctx context.Context, symbol string) (float64, error) {
	var resp latestTradeResponse
	path := "/v2/stocks/" + url.PathEscape(symbol) + "/trades/latest"
	if err := c.get(ctx, c.data, "alpaca: latest trade", path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Trade.P.InexactFloat64(), nil
}
