// Package mtbridge implements the forex venue against a MetaTrader REST
// bridge. The bridge is a small HTTP service next to the terminal; it
// speaks MetaTrader order type codes and lot volumes.
package mtbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// ClientConfig configures the bridge client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Account    string
	Timeout    time.Duration
	RatePerMin int
	Retry      venue.RetryPolicy
}

// Client talks to the bridge.
type Client struct {
	http    *resty.Client
	account string
	limiter *rate.Limiter
	retry   venue.RetryPolicy
}

type bridgeReply interface{ bridgeError() string }

func (e envelope) bridgeError() string { return e.Error }

// NewClient creates a bridge client. The default base URL is the local
// bridge on port 5000.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:5000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 300
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = venue.DefaultRetry()
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("X-API-KEY", cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Client{
		http:    rc,
		account: cfg.Account,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60), max(1, cfg.RatePerMin/60)),
		retry:   cfg.Retry,
	}
}

// do performs one round trip. A 200 reply whose body carries an "error"
// field fails with kind.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out bridgeReply, kind error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return venue.Permanent(fmt.Errorf("%s: %w", op, err))
	}
	req := c.http.R().SetContext(ctx)
	if query == nil {
		query = url.Values{}
	}
	query.Set("account", c.account)
	if method == http.MethodGet {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return venue.Permanent(fmt.Errorf("%s: %w", op, ctx.Err()))
		}
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConnection, err)
	}
	if err := venue.CheckStatus(op, resp.StatusCode(), resp.String()); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return venue.Permanent(fmt.Errorf("%s: decode: %w", op, err))
	}
	if msg := out.bridgeError(); msg != "" {
		return venue.Permanent(fmt.Errorf("%s: %w: %s", op, kind, msg))
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out bridgeReply, kind error) error {
	return venue.Retry(ctx, c.retry, func(int) error {
		return c.do(ctx, op, http.MethodGet, path, query, nil, out, kind)
	})
}

// Connect asks the bridge to attach to the configured account.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	var r connectResponse
	if err := c.get(ctx, "mtbridge: connect", "/connect", nil, &r, domain.ErrConnection); err != nil {
		return false, err
	}
	return r.Connected, nil
}

// Disconnect detaches the bridge from the account.
func (c *Client) Disconnect(ctx context.Context) error {
	var r envelope
	return c.get(ctx, "mtbridge: disconnect", "/disconnect", nil, &r, domain.ErrConnection)
}

// GetAccount returns the account figures.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	var a Account
	err := c.get(ctx, "mtbridge: account", "/account", nil, &a, domain.ErrConnection)
	return a, err
}

// ListPositions returns the open positions.
func (c *Client) ListPositions(ctx context.Context) ([]Position, error) {
	var r positionsResponse
	err := c.get(ctx, "mtbridge: positions", "/positions", nil, &r, domain.ErrConnection)
	return r.Positions, err
}

// GetOrder returns one order by ticket.
func (c *Client) GetOrder(ctx context.Context, ticket int64) (Order, error) {
	var r orderResponse
	q := url.Values{"ticket": {strconv.FormatInt(ticket, 10)}}
	err := c.get(ctx, "mtbridge: get order", "/order", q, &r, domain.ErrNotFound)
	return r.Order, err
}

// ListOrders returns pending orders, or history when closed is true.
func (c *Client) ListOrders(ctx context.Context, closed bool) ([]Order, error) {
	path := "/orders"
	if closed {
		path = "/history_orders"
	}
	var r ordersResponse
	err := c.get(ctx, "mtbridge: list orders", path, nil, &r, domain.ErrConnection)
	return r.Orders, err
}

// findByComment searches pending and historical orders for the client
// order id that was written into the order comment.
func (c *Client) findByComment(ctx context.Context, comment string) (Order, bool, error) {
	for _, closed := range []bool{false, true} {
		orders, err := c.ListOrders(ctx, closed)
		if err != nil {
			return Order{}, false, err
		}
		for _, o := range orders {
			if o.Comment == comment {
				return o, true, nil
			}
		}
	}
	return Order{}, false, nil
}

// PlaceOrder submits req and returns the new ticket. The comment must be
// a unique client order id: a retry first searches for it and never posts
// twice for the same id.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (int64, error) {
	if req.Comment == "" {
		return 0, fmt.Errorf("mtbridge: place order: %w: client order id required", domain.ErrInvalidOrder)
	}
	req.Account = c.account
	var ticket int64
	err := venue.Retry(ctx, c.retry, func(attempt int) error {
		if attempt > 0 {
			o, found, err := c.findByComment(ctx, req.Comment)
			if err != nil {
				return err
			}
			if found {
				ticket = o.Ticket
				return nil
			}
		}
		var r placeResponse
		if err := c.do(ctx, "mtbridge: place order", http.MethodPost, "/order", nil, req, &r, domain.ErrOrderRejected); err != nil {
			return err
		}
		ticket = r.Ticket
		return nil
	})
	return ticket, err
}

// CancelOrder deletes a pending order.
func (c *Client) CancelOrder(ctx context.Context, ticket int64) error {
	body := cancelRequest{Account: c.account, Ticket: ticket}
	return venue.Retry(ctx, c.retry, func(int) error {
		var r envelope
		return c.do(ctx, "mtbridge: cancel order", http.MethodDelete, "/order", nil, body, &r, domain.ErrNotFound)
	})
}

// Rates returns count candles for symbol at the MetaTrader period in
// minutes.
func (c *Client) Rates(ctx context.Context, symbol string, period, count int) ([]Rate, error) {
	var r ratesResponse
	q := url.Values{
		"symbol":    {symbol},
		"timeframe": {strconv.Itoa(period)},
		"count":     {strconv.Itoa(count)},
	}
	err := c.get(ctx, "mtbridge: rates", "/rates", q, &r, domain.ErrDataUnavailable)
	return r.Rates, err
}

// Tick returns the latest bid and ask.
func (c *Client) Tick(ctx context.Context, symbol string) (bid, ask float64, err error) {
	var r tickResponse
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "mtbridge: tick", "/tick", q, &r, domain.ErrDataUnavailable); err != nil {
		return 0, 0, err
	}
	return r.Tick.Bid.InexactFloat64(), r.Tick.Ask.InexactFloat64(), nil
}
