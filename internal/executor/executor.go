// Package executor submits orders to a venue and waits for the venue to
// confirm them. Entries are followed by a protective stop; exits clear
// resting protective orders first and restore the stop for whatever
// quantity the exit did not close.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// ErrNotFilled is returned when the venue did not fill any of an order
// before the fill timeout. The order has been cancelled.
var ErrNotFilled = errors.New("order not filled")

// Quantities at or below qtyEpsilon count as nothing left.
const qtyEpsilon = 1e-9

// Options tunes the executor. Zero values take defaults.
type Options struct {
	FillTimeout  time.Duration
	PollInterval time.Duration
	DedupTTL     time.Duration
}

// Executor places orders on whichever adapter the caller passes in. It
// holds no position state of its own.
type Executor struct {
	journal domain.OrderStore
	audit   domain.AuditStore
	dedup   *Dedup
	opts    Options
	logger  *slog.Logger
}

// New creates an Executor. journal and audit may be nil.
func New(journal domain.OrderStore, audit domain.AuditStore, opts Options, logger *slog.Logger) *Executor {
	if opts.FillTimeout <= 0 {
		opts.FillTimeout = 20 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 2 * time.Minute
	}
	return &Executor{
		journal: journal,
		audit:   audit,
		dedup:   NewDedup(opts.DedupTTL),
		opts:    opts,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Entry describes a new position.
type Entry struct {
	Symbol    string
	Side      domain.OrderSide
	Quantity  float64
	StopPrice float64
	Strategy  string
	SignalID  string
}

// Fill is a confirmed entry and its protective stop. StopErr is set when
// the entry filled but the stop could not be placed; the position is then
// unprotected until the risk audit notices.
type Fill struct {
	Entry   domain.Order
	Stop    *domain.Order
	StopErr error
}

// Open submits a market entry, waits for the fill and attaches a GTC stop
// for the filled quantity on the closing side. An entry that is only
// partly filled at the timeout is cancelled and the filled part is kept.
func (e *Executor) Open(ctx context.Context, ad venue.Adapter, in Entry) (Fill, error) {
	key := in.Symbol + ":" + string(in.Side)
	if e.dedup.IsDuplicate(key) {
		return Fill{}, fmt.Errorf("executor: open %s: %w: entry already in flight", in.Symbol, domain.ErrAlreadyExists)
	}
	log := e.logger.With(slog.String("symbol", in.Symbol), slog.String("side", string(in.Side)))

	order, err := e.submit(ctx, ad, domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        in.Symbol,
		Quantity:      in.Quantity,
		Side:          in.Side,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		Strategy:      in.Strategy,
		SignalID:      in.SignalID,
	})
	if err != nil {
		e.dedup.Forget(key)
		return Fill{}, fmt.Errorf("executor: open %s: %w", in.Symbol, err)
	}
	log.Info("entry filled",
		slog.String("order_id", order.ID),
		slog.Float64("qty", order.FilledQuantity),
		slog.Float64("requested", in.Quantity),
		slog.Float64("price", order.FilledPrice),
	)

	fill := Fill{Entry: order}
	closing := domain.OrderSideSell
	if in.Side == domain.OrderSideSell {
		closing = domain.OrderSideBuy
	}
	stop, err := e.placeStop(ctx, ad, domain.OrderRequest{
		Symbol:    in.Symbol,
		Quantity:  order.FilledQuantity,
		Side:      closing,
		StopPrice: domain.Float64Ptr(in.StopPrice),
		Strategy:  in.Strategy,
		SignalID:  in.SignalID,
	}, "stop_placed")
	if err != nil {
		fill.StopErr = err
		return fill, nil
	}
	fill.Stop = &stop
	return fill, nil
}

// placeStop submits a GTC stop built from req and journals it under event.
func (e *Executor) placeStop(ctx context.Context, ad venue.Adapter, req domain.OrderRequest, event string) (domain.Order, error) {
	req.ClientOrderID = uuid.NewString()
	req.Type = domain.OrderTypeStop
	req.TimeInForce = domain.TimeInForceGTC
	log := e.logger.With(slog.String("symbol", req.Symbol), slog.Float64("qty", req.Quantity))

	stop, err := ad.PlaceOrder(ctx, req)
	if err != nil {
		log.Error("protective stop not placed", slog.String("error", err.Error()))
		return domain.Order{}, fmt.Errorf("executor: protective stop %s: %w", req.Symbol, err)
	}
	e.record(ctx, event, stop)
	log.Info("protective stop placed",
		slog.String("order_id", stop.ID),
		slog.Float64("stop_price", *req.StopPrice),
		slog.String("event", event),
	)
	return stop, nil
}

// Close cancels resting protective orders for the position and exits it
// at market. The returned order carries the realized P/L against the
// position's entry price.
//
// When the exit fails, or fills only part of the position, the cancelled
// stop is placed again for the quantity still held. A failure to restore
// it is returned as an error alongside any partial exit order.
func (e *Executor) Close(ctx context.Context, ad venue.Adapter, pos domain.Position, strategy, reason string) (domain.Order, error) {
	closing := pos.ClosingSide()
	open, err := ad.Orders(ctx, venue.OrdersOpen)
	if err != nil {
		return domain.Order{}, fmt.Errorf("executor: close %s: open orders: %w", pos.Symbol, err)
	}
	var stopPx *float64
	for _, o := range open {
		if o.Symbol != pos.Symbol || o.Side != closing {
			continue
		}
		if !o.IsProtective(closing) && !o.IsTakeProfit(closing) {
			continue
		}
		if !ad.CancelOrder(ctx, o.ID) {
			e.logger.Warn("resting order not cancelled", slog.String("symbol", pos.Symbol), slog.String("order_id", o.ID))
			continue
		}
		if o.IsProtective(closing) && o.StopPrice != nil && stopPx == nil {
			stopPx = domain.Float64Ptr(*o.StopPrice)
		}
	}

	order, err := e.submit(ctx, ad, domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        pos.Symbol,
		Quantity:      pos.Quantity,
		Side:          closing,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		Strategy:      strategy,
	})
	if err != nil {
		err = fmt.Errorf("executor: close %s: %w", pos.Symbol, err)
		if rerr := e.restoreStop(ctx, ad, pos, pos.Quantity, stopPx, strategy); rerr != nil {
			return domain.Order{}, errors.Join(err, rerr)
		}
		return domain.Order{}, err
	}

	pnl := (order.FilledPrice - pos.EntryPrice) * order.FilledQuantity
	if pos.Side == domain.PositionSideShort {
		pnl = -pnl
	}
	order.RealizedPnL = pnl
	e.record(ctx, "position_closed", order)
	e.logger.Info("position closed",
		slog.String("symbol", pos.Symbol),
		slog.String("reason", reason),
		slog.Float64("realized_pnl", pnl),
	)

	if remaining := pos.Quantity - order.FilledQuantity; remaining > qtyEpsilon {
		if rerr := e.restoreStop(ctx, ad, pos, remaining, stopPx, strategy); rerr != nil {
			return order, fmt.Errorf("executor: close %s: partial exit: %w", pos.Symbol, rerr)
		}
	}
	return order, nil
}

// restoreStop protects qty of pos again at stopPx after a failed or
// partial exit. It runs detached from ctx's cancellation so a shutdown in
// the middle of an exit still leaves the stop in place.
func (e *Executor) restoreStop(ctx context.Context, ad venue.Adapter, pos domain.Position, qty float64, stopPx *float64, strategy string) error {
	if stopPx == nil {
		e.logger.Warn("no protective stop to restore", slog.String("symbol", pos.Symbol), slog.Float64("qty", qty))
		return nil
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.FillTimeout)
	defer cancel()
	_, err := e.placeStop(rctx, ad, domain.OrderRequest{
		Symbol:    pos.Symbol,
		Quantity:  qty,
		Side:      pos.ClosingSide(),
		StopPrice: stopPx,
		Strategy:  strategy,
	}, "stop_restored")
	return err
}

// submit places req and blocks until the order is filled, fails, or the
// fill timeout passes. A filled order, or a cancelled one with a partial
// fill, is returned without error; callers read FilledQuantity.
func (e *Executor) submit(ctx context.Context, ad venue.Adapter, req domain.OrderRequest) (domain.Order, error) {
	order, err := ad.PlaceOrder(ctx, req)
	if err != nil {
		return domain.Order{}, err
	}
	e.record(ctx, "order_submitted", order)

	order, err = e.awaitFill(ctx, ad, order)
	if err != nil {
		return order, err
	}
	e.record(ctx, "order_filled", order)
	return order, nil
}

func (e *Executor) awaitFill(ctx context.Context, ad venue.Adapter, order domain.Order) (domain.Order, error) {
	deadline := time.NewTimer(e.opts.FillTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		switch order.Status {
		case domain.OrderStatusFilled:
			return order, nil
		case domain.OrderStatusCancelled, domain.OrderStatusRejected:
			if order.FilledQuantity > qtyEpsilon {
				return e.partialFill(ctx, order), nil
			}
			e.record(ctx, "order_"+string(order.Status), order)
			return order, fmt.Errorf("%w: order %s %s", domain.ErrOrderRejected, order.ID, order.Status)
		}

		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-deadline.C:
			cancelled := ad.CancelOrder(ctx, order.ID)
			// Read back what filled before the cancel took effect.
			if latest, err := ad.Order(ctx, order.ID); err == nil {
				order = latest
			} else if cancelled {
				order.Status = domain.OrderStatusCancelled
			}
			switch {
			case order.Status == domain.OrderStatusFilled:
				return order, nil
			case order.FilledQuantity > qtyEpsilon:
				return e.partialFill(ctx, order), nil
			}
			e.record(ctx, "order_timeout", order)
			return order, fmt.Errorf("%w: %s after %s", ErrNotFilled, order.ID, e.opts.FillTimeout)
		case <-ticker.C:
			latest, err := ad.Order(ctx, order.ID)
			if err != nil {
				e.logger.Warn("order status poll failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
				continue
			}
			order = latest
		}
	}
}

func (e *Executor) partialFill(ctx context.Context, order domain.Order) domain.Order {
	e.logger.Warn("order partially filled",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.Float64("filled", order.FilledQuantity),
		slog.Float64("requested", order.Quantity),
	)
	e.record(ctx, "order_partial_fill", order)
	return order
}

func (e *Executor) record(ctx context.Context, event string, o domain.Order) {
	if e.journal != nil {
		if err := e.journal.Upsert(ctx, o); err != nil {
			e.logger.Warn("order journal write failed", slog.String("order_id", o.ID), slog.String("error", err.Error()))
		}
	}
	if e.audit != nil {
		detail := map[string]any{
			"order_id": o.ID,
			"symbol":   o.Symbol,
			"side":     string(o.Side),
			"type":     string(o.Type),
			"qty":      o.Quantity,
			"status":   string(o.Status),
			"venue":    o.Venue,
			"strategy": o.Strategy,
		}
		if o.FilledPrice > 0 {
			detail["filled_price"] = o.FilledPrice
		}
		if err := e.audit.Log(ctx, event, detail); err != nil {
			e.logger.Warn("audit log write failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}
}

// Cleanup expires old dedup entries.
func (e *Executor) Cleanup() { e.dedup.Cleanup() }
