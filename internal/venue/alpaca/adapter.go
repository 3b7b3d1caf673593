package alpaca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// Adapter is the equities venue.
type Adapter struct {
	client *Client
	live   bool
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	connected bool
}

var _ venue.Adapter = (*Adapter)(nil)

// New creates an equities Adapter. live selects the real-money endpoint
// only through the configured base URL; the flag is reported by Live.
func New(client *Client, live bool, logger *slog.Logger) *Adapter {
	return &Adapter{
		client: client,
		live:   live,
		logger: logger.With(slog.String("component", "venue_alpaca")),
		now:    time.Now,
	}
}

func (a *Adapter) setConnected(ok bool) {
	a.mu.Lock()
	a.connected = ok
	a.mu.Unlock()
}

// noteErr marks the adapter disconnected once a connection failure has
// survived the bounded retry.
func (a *Adapter) noteErr(err error) error {
	if errors.Is(err, domain.ErrConnection) {
		a.setConnected(false)
	}
	return err
}

// Connect reads the account and reports true only for an ACTIVE account
// that is not blocked from trading.
func (a *Adapter) Connect(ctx context.Context) bool {
	acct, err := a.client.GetAccount(ctx)
	if err != nil {
		a.logger.Warn("connect failed", slog.String("error", err.Error()))
		a.setConnected(false)
		return false
	}
	ok := strings.EqualFold(acct.Status, "ACTIVE") && !acct.TradingBlocked
	if !ok {
		a.logger.Warn("account not tradable", slog.String("status", acct.Status), slog.Bool("blocked", acct.TradingBlocked))
	}
	a.setConnected(ok)
	return ok
}

// Disconnect only drops the connected flag; the REST client holds no
// session.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.setConnected(false)
	return nil
}

// Connected reports the result of the last Connect or connection failure.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Account maps the trading account. Free margin is the venue's buying
// power.
func (a *Adapter) Account(ctx context.Context) (domain.AccountSnapshot, error) {
	acct, err := a.client.GetAccount(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, a.noteErr(err)
	}
	return domain.AccountSnapshot{
		Venue:       a.PlatformName(),
		Currency:    acct.Currency,
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
		Margin:      acct.InitialMargin.InexactFloat64(),
		FreeMargin:  acct.BuyingPower.InexactFloat64(),
		Leverage:    acct.Multiplier.InexactFloat64(),
		CapturedAt:  a.now(),
	}, nil
}

// Positions lists open positions keyed by symbol. A negative quantity or
// a "short" side marks a short; quantities are reported unsigned.
func (a *Adapter) Positions(ctx context.Context) (map[string]domain.Position, error) {
	ps, err := a.client.ListPositions(ctx)
	if err != nil {
		return nil, a.noteErr(err)
	}
	out := make(map[string]domain.Position, len(ps))
	for _, p := range ps {
		qty := p.Qty.Abs()
		if qty.IsZero() {
			continue
		}
		side := domain.PositionSideLong
		if strings.EqualFold(p.Side, "short") || p.Qty.IsNegative() {
			side = domain.PositionSideShort
		}
		out[p.Symbol] = domain.Position{
			Symbol:        p.Symbol,
			Side:          side,
			Quantity:      qty.InexactFloat64(),
			EntryPrice:    p.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:  p.CurrentPrice.InexactFloat64(),
			MarketValue:   p.MarketValue.Abs().InexactFloat64(),
			UnrealizedPnL: p.UnrealizedPL.InexactFloat64(),
			Venue:         a.PlatformName(),
		}
	}
	a.fillOpenedAt(ctx, out)
	return out, nil
}

// fillOpenedAt dates each position by the newest filled order on its
// opening side, since the positions endpoint carries no open time. A
// failed lookup leaves OpenedAt zero.
func (a *Adapter) fillOpenedAt(ctx context.Context, positions map[string]domain.Position) {
	if len(positions) == 0 {
		return
	}
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	orders, err := a.client.RecentClosedOrders(ctx, symbols, 500)
	if err != nil {
		a.logger.Warn("position open times unavailable", slog.String("error", err.Error()))
		return
	}
	for _, o := range orders {
		p, ok := positions[o.Symbol]
		if !ok || o.FilledAt == nil || !o.FilledQty.IsPositive() {
			continue
		}
		opening := domain.OrderSideBuy
		if p.Side == domain.PositionSideShort {
			opening = domain.OrderSideSell
		}
		if domain.OrderSide(o.Side) == opening && o.FilledAt.After(p.OpenedAt) {
			p.OpenedAt = *o.FilledAt
			positions[o.Symbol] = p
		}
	}
}

// PlaceOrder validates req, fills in a client order id and day time in
// force when missing, and submits it. A venue rejection returns the order
// along with domain.ErrOrderRejected.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	if req.TimeInForce == "" {
		req.TimeInForce = domain.TimeInForceDay
	}
	body := OrderRequest{
		Symbol:        req.Symbol,
		Qty:           decimal.NewFromFloat(req.Quantity),
		Side:          string(req.Side),
		Type:          string(req.Type),
		TimeInForce:   string(req.TimeInForce),
		LimitPrice:    decimalPtr(req.LimitPrice),
		StopPrice:     decimalPtr(req.StopPrice),
		ClientOrderID: req.ClientOrderID,
	}
	o, err := a.client.SubmitOrder(ctx, body)
	if err != nil {
		return domain.Order{}, a.noteErr(fmt.Errorf("alpaca: place order %s: %w", req.Symbol, err))
	}
	out := a.toDomain(o)
	out.Strategy = req.Strategy
	out.SignalID = req.SignalID
	if out.Status == domain.OrderStatusRejected {
		return out, fmt.Errorf("alpaca: place order %s: %w", req.Symbol, domain.ErrOrderRejected)
	}
	return out, nil
}

// CancelOrder reports whether the venue accepted the cancellation.
func (a *Adapter) CancelOrder(ctx context.Context, id string) bool {
	if err := a.client.CancelOrder(ctx, id); err != nil {
		a.logger.Warn("cancel order failed", slog.String("order_id", id), slog.String("error", a.noteErr(err).Error()))
		return false
	}
	return true
}

// Order fetches one order by venue id.
func (a *Adapter) Order(ctx context.Context, id string) (domain.Order, error) {
	o, err := a.client.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, a.noteErr(err)
	}
	return a.toDomain(o), nil
}

// OrderByClientID finds an order by the idempotency key it was placed with.
func (a *Adapter) OrderByClientID(ctx context.Context, clientID string) (domain.Order, error) {
	o, err := a.client.GetOrderByClientID(ctx, clientID)
	if err != nil {
		return domain.Order{}, a.noteErr(err)
	}
	return a.toDomain(o), nil
}

// Orders lists up to 500 open or closed orders, oldest first.
func (a *Adapter) Orders(ctx context.Context, q venue.OrderQuery) ([]domain.Order, error) {
	orders, err := a.client.ListOrders(ctx, string(q), 500)
	if err != nil {
		return nil, a.noteErr(err)
	}
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, a.toDomain(o))
	}
	return out, nil
}

// Candles fetches up to limit bars ending now. An unknown symbol yields no
// bars rather than an error.
func (a *Adapter) Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	bars, err := a.client.GetBars(ctx, symbol, tf.String(), a.now().Add(-lookback(tf, limit)), limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, a.noteErr(err)
	}
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Bar{
			Time:   b.T,
			Open:   b.O.InexactFloat64(),
			High:   b.H.InexactFloat64(),
			Low:    b.L.InexactFloat64(),
			Close:  b.C.InexactFloat64(),
			Volume: b.V.InexactFloat64(),
		})
	}
	return out, nil
}

// lookback widens the request window so that limit bars are available
// across nights and weekends.
func lookback(tf domain.Timeframe, limit int) time.Duration {
	span := tf.Duration() * time.Duration(limit)
	if tf.Intraday() {
		// 6.5 trading hours a day, 5 days a week.
		return span * 24 / 6 * 7 / 5
	}
	return span*7/5 + 7*24*time.Hour
}

// CurrentPrice is the latest trade, or the last minute bar's close when
// the symbol has not printed.
func (a *Adapter) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	px, err := a.client.LatestTradePrice(ctx, symbol)
	if err == nil && px > 0 {
		return px, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, a.noteErr(err)
	}
	// No trade print: use the last minute bar.
	bars, berr := a.Candles(ctx, symbol, domain.Timeframe{N: 1, Unit: domain.TimeUnitMinute}, 1)
	if berr != nil {
		return 0, berr
	}
	if len(bars) == 0 || bars[len(bars)-1].Close <= 0 {
		return 0, fmt.Errorf("alpaca: price %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return bars[len(bars)-1].Close, nil
}

// IsMarketOpen reads the venue's market clock.
func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
	clk, err := a.client.GetClock(ctx)
	if err != nil {
		return false, a.noteErr(err)
	}
	return clk.IsOpen, nil
}

// NextOpenClose returns the clock's next session open and close.
func (a *Adapter) NextOpenClose(ctx context.Context) (time.Time, time.Time, error) {
	clk, err := a.client.GetClock(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, a.noteErr(err)
	}
	return clk.NextOpen, clk.NextClose, nil
}

// Venue identity.
func (a *Adapter) PlatformName() string           { return "Alpaca" }
func (a *Adapter) PlatformType() domain.VenueType { return domain.VenueTypeEquities }
func (a *Adapter) Live() bool                     { return a.live }

func (a *Adapter) toDomain(o Order) domain.Order {
	out := domain.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           domain.OrderSide(o.Side),
		Type:           domain.OrderType(o.Type),
		TimeInForce:    domain.TimeInForce(o.TimeInForce),
		Quantity:       o.Qty.InexactFloat64(),
		FilledQuantity: o.FilledQty.InexactFloat64(),
		LimitPrice:     floatPtr(o.LimitPrice),
		StopPrice:      floatPtr(o.StopPrice),
		Status:         mapStatus(o.Status),
		Venue:          a.PlatformName(),
		SubmittedAt:    o.SubmittedAt,
		UpdatedAt:      o.UpdatedAt,
		FilledAt:       o.FilledAt,
	}
	if o.FilledAvgPrice.Valid {
		out.FilledPrice = o.FilledAvgPrice.Decimal.InexactFloat64()
	}
	return out
}

// mapStatus folds the venue's order states onto the four domain states.
// Partially filled and pending states are still working orders.
func mapStatus(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "expired", "done_for_day", "replaced":
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusSubmitted
	}
}

func decimalPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
