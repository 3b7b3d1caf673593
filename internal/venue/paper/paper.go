// Package paper is a simulated, non-live venue. It keeps account, position
// and order state in memory and fills against prices supplied by the caller
// or by an external quote source.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// Quotes supplies market data to the simulator. The Yahoo source in
// internal/marketdata satisfies it.
type Quotes interface {
	Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Op names a simulated call for failure injection.
type Op string

const (
	OpConnect Op = "connect"
	OpAccount Op = "account"
	OpCandles Op = "candles"
	OpPrice   Op = "price"
	OpPlace   Op = "place"
	OpHours   Op = "hours"
	OpOrders  Op = "orders"
)

// Options configures a simulated venue.
type Options struct {
	Name     string
	Type     domain.VenueType
	Cash     float64
	Quotes   Quotes
	Calendar calendar.Calendar
	Now      func() time.Time
}

type position struct {
	side     domain.PositionSide
	qty      float64
	entry    float64
	strategy string
	openedAt time.Time
}

// Adapter is the in-memory venue.
type Adapter struct {
	mu          sync.Mutex
	opts        Options
	connectable bool
	connected   bool
	cash        float64
	positions   map[string]*position
	orders      map[string]domain.Order
	byClientID  map[string]string
	prices      map[string]float64
	bars        map[string][]domain.Bar
	failures    map[Op]int
}

var _ venue.Adapter = (*Adapter)(nil)

// New creates a simulated venue with the given starting cash.
func New(opts Options) *Adapter {
	if opts.Name == "" {
		opts.Name = "Paper"
	}
	if opts.Type == "" {
		opts.Type = domain.VenueTypeEquities
	}
	if opts.Calendar == nil {
		opts.Calendar = calendar.AlwaysOpen{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Adapter{
		opts:        opts,
		connectable: true,
		cash:        opts.Cash,
		positions:   make(map[string]*position),
		orders:      make(map[string]domain.Order),
		byClientID:  make(map[string]string),
		prices:      make(map[string]float64),
		bars:        make(map[string][]domain.Bar),
		failures:    make(map[Op]int),
	}
}

// SetConnectable controls whether Connect succeeds.
func (a *Adapter) SetConnectable(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectable = ok
	if !ok {
		a.connected = false
	}
}

// FailNext makes the next n calls of op return domain.ErrConnection.
func (a *Adapter) FailNext(op Op, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = n
}

// must be called with a.mu held
func (a *Adapter) injected(op Op) error {
	if n := a.failures[op]; n > 0 {
		a.failures[op] = n - 1
		return fmt.Errorf("paper: %s: %w: injected failure", op, domain.ErrConnection)
	}
	return nil
}

// SetPrice records a last price and triggers any resting stop or limit
// orders it crosses.
func (a *Adapter) SetPrice(symbol string, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices[symbol] = price
	a.triggerResting(symbol, price)
}

// SetBars replaces the candle history for symbol. The last close also
// becomes the current price.
func (a *Adapter) SetBars(symbol string, bars []domain.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bars[symbol] = append([]domain.Bar(nil), bars...)
	if len(bars) > 0 {
		a.prices[symbol] = bars[len(bars)-1].Close
		a.triggerResting(symbol, bars[len(bars)-1].Close)
	}
}

// Seed opens a position directly, as if it had been filled earlier.
func (a *Adapter) Seed(symbol string, side domain.PositionSide, qty, entry float64, openedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[symbol] = &position{side: side, qty: qty, entry: entry, openedAt: openedAt}
	if side == domain.PositionSideLong {
		a.cash -= qty * entry
	} else {
		a.cash += qty * entry
	}
	if _, ok := a.prices[symbol]; !ok {
		a.prices[symbol] = entry
	}
}

// SeedOrder stores an order as-is, e.g. a resting stop placed elsewhere.
func (a *Adapter) SeedOrder(o domain.Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	a.orders[o.ID] = o
	if o.ClientOrderID != "" {
		a.byClientID[o.ClientOrderID] = o.ID
	}
}

// Connect succeeds unless SetConnectable(false) or an injected failure
// says otherwise.
func (a *Adapter) Connect(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.injected(OpConnect) != nil || !a.connectable {
		a.connected = false
		return false
	}
	a.connected = true
	return true
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Adapter) Account(ctx context.Context) (domain.AccountSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.injected(OpAccount); err != nil {
		return domain.AccountSnapshot{}, err
	}
	equity := a.equityLocked()
	return domain.AccountSnapshot{
		Venue:       a.opts.Name,
		Currency:    "USD",
		Equity:      equity,
		Cash:        a.cash,
		BuyingPower: a.cash,
		Leverage:    1,
		CapturedAt:  a.opts.Now(),
	}, nil
}

func (a *Adapter) equityLocked() float64 {
	equity := a.cash
	for sym, p := range a.positions {
		px := a.markLocked(sym, p)
		if p.side == domain.PositionSideLong {
			equity += p.qty * px
		} else {
			equity -= p.qty * px
		}
	}
	return equity
}

func (a *Adapter) markLocked(symbol string, p *position) float64 {
	if px, ok := a.prices[symbol]; ok && px > 0 {
		return px
	}
	return p.entry
}

// Positions marks each holding to the last set price.
func (a *Adapter) Positions(ctx context.Context) (map[string]domain.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]domain.Position, len(a.positions))
	for sym, p := range a.positions {
		px := a.markLocked(sym, p)
		pnl := (px - p.entry) * p.qty
		if p.side == domain.PositionSideShort {
			pnl = -pnl
		}
		out[sym] = domain.Position{
			Symbol:        sym,
			Side:          p.side,
			Quantity:      p.qty,
			EntryPrice:    p.entry,
			CurrentPrice:  px,
			MarketValue:   p.qty * px,
			UnrealizedPnL: pnl,
			Venue:         a.opts.Name,
			Strategy:      p.strategy,
			OpenedAt:      p.openedAt,
		}
	}
	return out, nil
}

// PlaceOrder fills market orders at the last set price and rests every
// other type until SetPrice crosses it.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.injected(OpPlace); err != nil {
		return domain.Order{}, err
	}
	if !a.connected {
		return domain.Order{}, fmt.Errorf("paper: place order: %w", domain.ErrNotConnected)
	}
	if req.ClientOrderID != "" {
		if id, ok := a.byClientID[req.ClientOrderID]; ok {
			return a.orders[id], nil
		}
	}

	now := a.opts.Now()
	o := domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		Status:        domain.OrderStatusSubmitted,
		Venue:         a.opts.Name,
		Strategy:      req.Strategy,
		SignalID:      req.SignalID,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}

	if o.Type == domain.OrderTypeMarket {
		px, ok := a.prices[req.Symbol]
		if !ok || px <= 0 {
			o.Status = domain.OrderStatusRejected
			a.storeLocked(o)
			return o, fmt.Errorf("paper: place order %s: %w: no price", req.Symbol, domain.ErrOrderRejected)
		}
		if req.Side == domain.OrderSideBuy && !a.coversShortLocked(req.Symbol) && req.Quantity*px > a.cash {
			o.Status = domain.OrderStatusRejected
			a.storeLocked(o)
			return o, fmt.Errorf("paper: place order %s: %w: insufficient buying power", req.Symbol, domain.ErrOrderRejected)
		}
		o = a.fillLocked(o, px)
	}
	a.storeLocked(o)
	return o, nil
}

func (a *Adapter) coversShortLocked(symbol string) bool {
	p, ok := a.positions[symbol]
	return ok && p.side == domain.PositionSideShort
}

func (a *Adapter) storeLocked(o domain.Order) {
	a.orders[o.ID] = o
	if o.ClientOrderID != "" {
		a.byClientID[o.ClientOrderID] = o.ID
	}
}

// fillLocked applies a complete fill at px and returns the filled order.
func (a *Adapter) fillLocked(o domain.Order, px float64) domain.Order {
	now := a.opts.Now()
	qty := o.Quantity
	p, held := a.positions[o.Symbol]

	opening := domain.PositionSideLong
	if o.Side == domain.OrderSideSell {
		opening = domain.PositionSideShort
	}

	switch {
	case !held:
		a.positions[o.Symbol] = &position{side: opening, qty: qty, entry: px, strategy: o.Strategy, openedAt: now}
	case p.side == opening:
		p.entry = (p.entry*p.qty + px*qty) / (p.qty + qty)
		p.qty += qty
	default:
		closed := qty
		if closed > p.qty {
			closed = p.qty
		}
		pnl := (px - p.entry) * closed
		if p.side == domain.PositionSideShort {
			pnl = -pnl
		}
		o.RealizedPnL = pnl
		p.qty -= closed
		if rest := qty - closed; rest > 0 {
			a.positions[o.Symbol] = &position{side: opening, qty: rest, entry: px, strategy: o.Strategy, openedAt: now}
		} else if p.qty <= 0 {
			delete(a.positions, o.Symbol)
		}
	}

	if o.Side == domain.OrderSideBuy {
		a.cash -= qty * px
	} else {
		a.cash += qty * px
	}

	o.Status = domain.OrderStatusFilled
	o.FilledQuantity = qty
	o.FilledPrice = px
	o.UpdatedAt = now
	o.FilledAt = &now
	return o
}

// triggerResting fills resting stop and limit orders crossed by px.
func (a *Adapter) triggerResting(symbol string, px float64) {
	ids := make([]string, 0)
	for id, o := range a.orders {
		if o.Symbol == symbol && o.Status == domain.OrderStatusSubmitted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		o := a.orders[id]
		if !crosses(o, px) {
			continue
		}
		p, held := a.positions[symbol]
		closesHeld := held && p.side == sideClosedBy(o.Side)
		if o.Type == domain.OrderTypeStop || o.Type == domain.OrderTypeStopLimit {
			// A stop left behind by a closed position expires instead of
			// opening a new one, and never flips the position.
			if !closesHeld {
				o.Status = domain.OrderStatusCancelled
				o.UpdatedAt = a.opts.Now()
				a.orders[id] = o
				continue
			}
			if o.Quantity > p.qty {
				o.Quantity = p.qty
			}
		}
		a.orders[id] = a.fillLocked(o, px)
	}
}

func sideClosedBy(s domain.OrderSide) domain.PositionSide {
	if s == domain.OrderSideSell {
		return domain.PositionSideLong
	}
	return domain.PositionSideShort
}

func crosses(o domain.Order, px float64) bool {
	switch o.Type {
	case domain.OrderTypeStop, domain.OrderTypeStopLimit:
		if o.StopPrice == nil {
			return false
		}
		if o.Side == domain.OrderSideSell {
			return px <= *o.StopPrice
		}
		return px >= *o.StopPrice
	case domain.OrderTypeLimit:
		if o.LimitPrice == nil {
			return false
		}
		if o.Side == domain.OrderSideBuy {
			return px <= *o.LimitPrice
		}
		return px >= *o.LimitPrice
	}
	return false
}

func (a *Adapter) CancelOrder(ctx context.Context, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[id]
	if !ok || o.Status.IsTerminal() {
		return false
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = a.opts.Now()
	a.orders[id] = o
	return true
}

func (a *Adapter) Order(ctx context.Context, id string) (domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper: order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (a *Adapter) Orders(ctx context.Context, q venue.OrderQuery) ([]domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.injected(OpOrders); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(a.orders))
	for _, o := range a.orders {
		open := !o.Status.IsTerminal()
		if (q == venue.OrdersOpen) == open {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (a *Adapter) Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	a.mu.Lock()
	if err := a.injected(OpCandles); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	bars, ok := a.bars[symbol]
	quotes := a.opts.Quotes
	a.mu.Unlock()

	if !ok && quotes != nil {
		return quotes.Candles(ctx, symbol, tf, limit)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return append([]domain.Bar(nil), bars...), nil
}

func (a *Adapter) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	a.mu.Lock()
	if err := a.injected(OpPrice); err != nil {
		a.mu.Unlock()
		return 0, err
	}
	px, ok := a.prices[symbol]
	quotes := a.opts.Quotes
	a.mu.Unlock()
	if ok {
		return px, nil
	}
	if quotes == nil {
		return 0, fmt.Errorf("paper: price %s: %w", symbol, domain.ErrDataUnavailable)
	}
	px, err := quotes.CurrentPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	a.SetPrice(symbol, px)
	return px, nil
}

func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.injected(OpHours); err != nil {
		return false, err
	}
	return a.opts.Calendar.IsOpen(a.opts.Now()), nil
}

func (a *Adapter) NextOpenClose(ctx context.Context) (time.Time, time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.injected(OpHours); err != nil {
		return time.Time{}, time.Time{}, err
	}
	open, close := a.opts.Calendar.NextOpenClose(a.opts.Now())
	return open, close, nil
}

func (a *Adapter) PlatformName() string           { return a.opts.Name }
func (a *Adapter) PlatformType() domain.VenueType { return a.opts.Type }
func (a *Adapter) Live() bool                     { return false }
