package mtbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// Adapter is the forex venue. Trading hours come from the 24/5 calendar;
// the bridge has no clock endpoint.
type Adapter struct {
	client *Client
	live   bool
	cal    calendar.Calendar
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	connected bool
}

var _ venue.Adapter = (*Adapter)(nil)

// New creates a forex Adapter.
func New(client *Client, live bool, logger *slog.Logger) *Adapter {
	return &Adapter{
		client: client,
		live:   live,
		cal:    calendar.Forex{},
		logger: logger.With(slog.String("component", "venue_mtbridge")),
		now:    time.Now,
	}
}

func (a *Adapter) setConnected(ok bool) {
	a.mu.Lock()
	a.connected = ok
	a.mu.Unlock()
}

func (a *Adapter) noteErr(err error) error {
	if errors.Is(err, domain.ErrConnection) {
		a.setConnected(false)
	}
	return err
}

// Connect asks the bridge whether it is attached to the account.
func (a *Adapter) Connect(ctx context.Context) bool {
	ok, err := a.client.Connect(ctx)
	if err != nil {
		a.logger.Warn("connect failed", slog.String("error", err.Error()))
		ok = false
	}
	a.setConnected(ok)
	return ok
}

// Disconnect detaches the bridge. The adapter counts as disconnected even
// when the bridge call fails.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.setConnected(false)
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mtbridge: disconnect: %w", err)
	}
	return nil
}

// Connected reports the result of the last Connect or connection failure.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Account maps the terminal account, defaulting leverage to 1 and the
// currency to USD when the bridge leaves them empty.
func (a *Adapter) Account(ctx context.Context) (domain.AccountSnapshot, error) {
	acct, err := a.client.GetAccount(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, a.noteErr(err)
	}
	leverage := acct.Leverage.InexactFloat64()
	if leverage == 0 {
		leverage = 1
	}
	currency := acct.Currency
	if currency == "" {
		currency = "USD"
	}
	return domain.AccountSnapshot{
		Venue:       a.PlatformName(),
		Currency:    currency,
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Balance.InexactFloat64(),
		BuyingPower: acct.FreeMargin.Mul(decimal.NewFromFloat(leverage)).InexactFloat64(),
		Margin:      acct.Margin.InexactFloat64(),
		FreeMargin:  acct.FreeMargin.InexactFloat64(),
		MarginLevel: acct.MarginLevel.InexactFloat64(),
		Leverage:    leverage,
		CapturedAt:  a.now(),
	}, nil
}

// Positions nets MetaTrader tickets per symbol. Hedged tickets on both
// sides of one symbol are reduced to the net exposure.
func (a *Adapter) Positions(ctx context.Context) (map[string]domain.Position, error) {
	ps, err := a.client.ListPositions(ctx)
	if err != nil {
		return nil, a.noteErr(err)
	}
	type agg struct {
		net, cost, pnl float64
		current        float64
		opened         time.Time
	}
	bySymbol := make(map[string]*agg)
	for _, p := range ps {
		vol := p.Volume.InexactFloat64()
		if p.Type == opSell {
			vol = -vol
		}
		g, ok := bySymbol[p.Symbol]
		if !ok {
			g = &agg{}
			bySymbol[p.Symbol] = g
		}
		g.net += vol
		g.cost += vol * p.OpenPrice.InexactFloat64()
		g.pnl += p.Profit.Add(p.Swap).InexactFloat64()
		if px := p.PriceCurrent.InexactFloat64(); px > 0 {
			g.current = px
		}
		opened := time.Unix(p.OpenTime, 0).UTC()
		if g.opened.IsZero() || opened.Before(g.opened) {
			g.opened = opened
		}
	}

	out := make(map[string]domain.Position, len(bySymbol))
	for sym, g := range bySymbol {
		if g.net == 0 {
			continue
		}
		side := domain.PositionSideLong
		qty := g.net
		if qty < 0 {
			side = domain.PositionSideShort
			qty = -qty
		}
		current := g.current
		if current == 0 {
			if px, err := a.CurrentPrice(ctx, sym); err == nil {
				current = px
			}
		}
		entry := g.cost / g.net
		out[sym] = domain.Position{
			Symbol:        sym,
			Side:          side,
			Quantity:      qty,
			EntryPrice:    entry,
			CurrentPrice:  current,
			MarketValue:   qty * current,
			UnrealizedPnL: g.pnl,
			Venue:         a.PlatformName(),
			OpenedAt:      g.opened,
		}
	}
	return out, nil
}

func mtOrderType(side domain.OrderSide, typ domain.OrderType) (int, error) {
	buy := side == domain.OrderSideBuy
	switch typ {
	case domain.OrderTypeMarket:
		if buy {
			return opBuy, nil
		}
		return opSell, nil
	case domain.OrderTypeLimit:
		if buy {
			return opBuyLimit, nil
		}
		return opSellLimit, nil
	case domain.OrderTypeStop:
		if buy {
			return opBuyStop, nil
		}
		return opSellStop, nil
	}
	return 0, fmt.Errorf("%w: %w: order type %q not supported by the bridge", domain.ErrOrderRejected, domain.ErrInvalidOrder, typ)
}

func fromMTType(code int) (domain.OrderSide, domain.OrderType) {
	switch code {
	case opSell:
		return domain.OrderSideSell, domain.OrderTypeMarket
	case opBuyLimit:
		return domain.OrderSideBuy, domain.OrderTypeLimit
	case opSellLimit:
		return domain.OrderSideSell, domain.OrderTypeLimit
	case opBuyStop:
		return domain.OrderSideBuy, domain.OrderTypeStop
	case opSellStop:
		return domain.OrderSideSell, domain.OrderTypeStop
	}
	return domain.OrderSideBuy, domain.OrderTypeMarket
}

// PlaceOrder submits req as a MetaTrader deal or pending order, with the
// volume rounded to lots of 0.01. The bridge answers with a ticket, which
// becomes the order id.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}
	code, err := mtOrderType(req.Side, req.Type)
	if err != nil {
		return domain.Order{}, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	body := OrderRequest{
		Symbol:   req.Symbol,
		Volume:   decimal.NewFromFloat(req.Quantity).Round(2).InexactFloat64(),
		Type:     code,
		Slippage: 3,
		Comment:  req.ClientOrderID,
	}
	switch req.Type {
	case domain.OrderTypeLimit:
		body.Price = *req.LimitPrice
	case domain.OrderTypeStop:
		body.Price = *req.StopPrice
	}

	ticket, err := a.client.PlaceOrder(ctx, body)
	if err != nil {
		return domain.Order{}, a.noteErr(fmt.Errorf("mtbridge: place order %s: %w", req.Symbol, err))
	}

	now := a.now()
	out := domain.Order{
		ID:            strconv.FormatInt(ticket, 10),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   domain.TimeInForceGTC,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		Status:        domain.OrderStatusSubmitted,
		Venue:         a.PlatformName(),
		Strategy:      req.Strategy,
		SignalID:      req.SignalID,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	// The bridge acknowledges with a ticket only; read back the state.
	if o, err := a.client.GetOrder(ctx, ticket); err == nil {
		st := a.toDomain(o)
		out.Status = st.Status
		out.FilledQuantity = st.FilledQuantity
		out.FilledPrice = st.FilledPrice
		out.FilledAt = st.FilledAt
	} else {
		a.logger.Debug("order read-back failed", slog.Int64("ticket", ticket), slog.String("error", err.Error()))
	}
	return out, nil
}

func parseTicket(id string) (int64, error) {
	t, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("mtbridge: ticket %q: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

// CancelOrder removes a pending order. A malformed ticket is reported as
// not cancelled.
func (a *Adapter) CancelOrder(ctx context.Context, id string) bool {
	ticket, err := parseTicket(id)
	if err != nil {
		return false
	}
	if err := a.client.CancelOrder(ctx, ticket); err != nil {
		a.logger.Warn("cancel order failed", slog.String("order_id", id), slog.String("error", a.noteErr(err).Error()))
		return false
	}
	return true
}

// Order looks up a ticket.
func (a *Adapter) Order(ctx context.Context, id string) (domain.Order, error) {
	ticket, err := parseTicket(id)
	if err != nil {
		return domain.Order{}, err
	}
	o, err := a.client.GetOrder(ctx, ticket)
	if err != nil {
		return domain.Order{}, a.noteErr(err)
	}
	return a.toDomain(o), nil
}

// Orders lists pending orders, or the deal history for OrdersClosed.
func (a *Adapter) Orders(ctx context.Context, q venue.OrderQuery) ([]domain.Order, error) {
	orders, err := a.client.ListOrders(ctx, q == venue.OrdersClosed)
	if err != nil {
		return nil, a.noteErr(err)
	}
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		d := a.toDomain(o)
		if q == venue.OrdersOpen && d.Status.IsTerminal() {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// period maps a timeframe onto a MetaTrader period in minutes. Unsupported
// widths fall back to the nearest standard period below.
func period(tf domain.Timeframe) int {
	switch tf.Unit {
	case domain.TimeUnitMinute:
		switch {
		case tf.N >= 30:
			return 30
		case tf.N >= 15:
			return 15
		case tf.N >= 5:
			return 5
		}
		return 1
	case domain.TimeUnitHour:
		if tf.N >= 4 {
			return 240
		}
		return 60
	case domain.TimeUnitDay:
		return 1440
	case domain.TimeUnitWeek:
		return 10080
	}
	return 60
}

// Candles returns rates at the nearest supported period. Symbols the
// terminal has no history for yield no bars.
func (a *Adapter) Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	rates, err := a.client.Rates(ctx, symbol, period(tf), limit)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			return nil, nil
		}
		return nil, a.noteErr(err)
	}
	out := make([]domain.Bar, 0, len(rates))
	for _, r := range rates {
		out = append(out, domain.Bar{
			Time:   time.Unix(r.Time, 0).UTC(),
			Open:   r.Open.InexactFloat64(),
			High:   r.High.InexactFloat64(),
			Low:    r.Low.InexactFloat64(),
			Close:  r.Close.InexactFloat64(),
			Volume: r.TickVolume.InexactFloat64(),
		})
	}
	return out, nil
}

// CurrentPrice is the bid/ask mid.
func (a *Adapter) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	bid, ask, err := a.client.Tick(ctx, symbol)
	if err != nil {
		return 0, a.noteErr(err)
	}
	if bid <= 0 || ask <= 0 {
		return 0, fmt.Errorf("mtbridge: price %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return (bid + ask) / 2, nil
}

// IsMarketOpen follows the forex session calendar, not the terminal.
func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
	return a.cal.IsOpen(a.now()), nil
}

// NextOpenClose returns the next session boundaries from the calendar.
func (a *Adapter) NextOpenClose(ctx context.Context) (time.Time, time.Time, error) {
	open, close := a.cal.NextOpenClose(a.now())
	return open, close, nil
}

// Venue identity.
func (a *Adapter) PlatformName() string           { return "MetaTrader" }
func (a *Adapter) PlatformType() domain.VenueType { return domain.VenueTypeForex }
func (a *Adapter) Live() bool                     { return a.live }

func (a *Adapter) toDomain(o Order) domain.Order {
	side, typ := fromMTType(o.Type)
	status := mapStatus(o.Status)
	qty := o.Volume.InexactFloat64()
	out := domain.Order{
		ID:            strconv.FormatInt(o.Ticket, 10),
		ClientOrderID: o.Comment,
		Symbol:        o.Symbol,
		Side:          side,
		Type:          typ,
		TimeInForce:   domain.TimeInForceGTC,
		Quantity:      qty,
		Status:        status,
		Venue:         a.PlatformName(),
		RealizedPnL:   o.Profit.InexactFloat64(),
		SubmittedAt:   time.Unix(o.OpenTime, 0).UTC(),
		UpdatedAt:     time.Unix(o.OpenTime, 0).UTC(),
	}
	switch typ {
	case domain.OrderTypeLimit:
		out.LimitPrice = domain.Float64Ptr(o.OpenPrice.InexactFloat64())
	case domain.OrderTypeStop:
		out.StopPrice = domain.Float64Ptr(o.OpenPrice.InexactFloat64())
	}
	if status == domain.OrderStatusFilled {
		out.FilledQuantity = qty
		out.FilledPrice = o.OpenPrice.InexactFloat64()
		at := out.SubmittedAt
		if o.CloseTime > 0 {
			at = time.Unix(o.CloseTime, 0).UTC()
			out.UpdatedAt = at
		}
		out.FilledAt = &at
	}
	return out
}

func mapStatus(s string) domain.OrderStatus {
	switch strings.ToLower(s) {
	case "filled", "closed", "executed":
		return domain.OrderStatusFilled
	case "cancelled", "canceled", "deleted", "expired":
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	}
	return domain.OrderStatusSubmitted
}
