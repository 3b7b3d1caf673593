package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/executor"
	"github.com/alanyoungcy/tradeloop/internal/risk"
	"github.com/alanyoungcy/tradeloop/internal/strategy"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// Venues is the slice of the venue registry the loop uses.
type Venues interface {
	Active() venue.Adapter
	ActiveID() string
	ConnectAll(ctx context.Context) map[string]bool
}

// MarketData is the failover feed.
type MarketData interface {
	Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error)
	IsMarketOpen(ctx context.Context) bool
	NextOpenClose(ctx context.Context) (time.Time, time.Time)
}

// Signals combines the configured signal providers.
type Signals interface {
	Evaluate(ctx context.Context, symbol string, bars []domain.Bar) domain.Signal
}

// Watchlist yields the watched symbols for a venue type.
// config.WatchlistConfig satisfies it.
type Watchlist interface {
	For(t domain.VenueType) []string
}

// ViolationHistory exposes recent violations for the daily report.
type ViolationHistory interface {
	History() []domain.Violation
}

// Config is the loop's cadence and thresholds.
type Config struct {
	OpenInterval      time.Duration
	ClosedInterval    time.Duration
	ReconnectInterval time.Duration
	StopTimeout       time.Duration
	Timeframe         domain.Timeframe
	CandleLimit       int
	MinBars           int
	BuyThreshold      float64
	ExitThreshold     float64
	MinNotional       float64
	MaxTradesPerDay   int
	LockTTL           time.Duration
	// Location decides when the calendar date rolls over.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.OpenInterval <= 0 {
		c.OpenInterval = 10 * time.Second
	}
	if c.ClosedInterval <= 0 {
		c.ClosedInterval = 60 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
	if c.Timeframe.N == 0 {
		c.Timeframe = domain.Timeframe{N: 15, Unit: domain.TimeUnitMinute}
	}
	if c.CandleLimit <= 0 {
		c.CandleLimit = 100
	}
	if c.MinBars <= 0 {
		c.MinBars = 30
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Deps are the loop's collaborators. Everything below Executor is
// optional.
type Deps struct {
	Venues    Venues
	Feed      MarketData
	Risk      *risk.Engine
	Profiles  *ProfilePin
	Signals   Signals
	Executor  *executor.Executor
	Watchlist Watchlist

	Counters   domain.CounterStore
	Audit      domain.AuditStore
	Orders     domain.OrderStore
	Reports    domain.ReportArchiver
	Violations ViolationHistory
	Lock       domain.LockManager
	Dashboard  DashboardSink
	Notifier   NotificationSink
	Now        func() time.Time
}

// Status is a point-in-time copy of loop state for status queries.
type Status struct {
	State      State                   `json:"state"`
	Halted     bool                    `json:"halted"`
	HaltReason string                  `json:"halt_reason,omitempty"`
	Venue      string                  `json:"venue"`
	Profile    string                  `json:"profile"`
	Counters   domain.DailyCounters    `json:"counters"`
	Tally      []Tally                 `json:"tally"`
	Account    *domain.AccountSnapshot `json:"account,omitempty"`
	Positions  []domain.Position       `json:"positions"`
	MarketOpen bool                    `json:"market_open"`
	NextOpen   time.Time               `json:"next_open"`
	NextClose  time.Time               `json:"next_close"`
	LastTick   time.Time               `json:"last_tick"`
}

// Loop is the trading control loop. Run executes ticks on one goroutine;
// Status and Stop may be called from any goroutine.
type Loop struct {
	cfg      Config
	deps     Deps
	counters *counters
	logger   *slog.Logger

	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	mu          sync.Mutex
	state       State
	halted      bool
	haltReason  string
	account     *domain.AccountSnapshot
	positions   map[string]domain.Position
	marketOpen  bool
	nextOpen    time.Time
	nextClose   time.Time
	lastTick    time.Time
	lastProfile string
}

// New creates a Loop in the Idle state.
func New(cfg Config, deps Deps, logger *slog.Logger) *Loop {
	if deps.Dashboard == nil {
		deps.Dashboard = NopDashboard{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Loop{
		cfg:       cfg.withDefaults(),
		deps:      deps,
		counters:  newCounters(),
		logger:    logger.With(slog.String("component", "loop")),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateIdle,
		positions: map[string]domain.Position{},
	}
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	prev := l.state
	if prev != StateStopped {
		l.state = s
	}
	l.mu.Unlock()
	if prev != s {
		l.logger.Debug("state change", slog.String("from", string(prev)), slog.String("to", string(s)))
	}
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) today() string {
	return l.deps.Now().In(l.cfg.Location).Format(dayLayout)
}

// Start connects every venue. It fails, leaving the loop in Connecting,
// when the active venue does not connect. Persisted counters for today
// are restored on the first successful start.
func (l *Loop) Start(ctx context.Context) error {
	l.setState(StateConnecting)
	results := l.deps.Venues.ConnectAll(ctx)
	id := l.deps.Venues.ActiveID()
	if id == "" || l.deps.Venues.Active() == nil {
		return fmt.Errorf("loop: start: %w: no active venue", domain.ErrConnection)
	}
	if !results[id] {
		l.activity("error", fmt.Sprintf("active venue %s failed to connect", id))
		return fmt.Errorf("loop: start: %w: venue %s", domain.ErrConnection, id)
	}

	l.restoreCounters(ctx)
	l.logger.Info("loop started", slog.String("venue", id))
	l.activity("info", "trading loop started on "+id)
	push(l.logger, "notifier", func() {
		l.deps.Notifier.NotifySystemEvent(ctx, "started", "trading loop started on "+id)
	})
	l.setState(StateScanning)
	return nil
}

func (l *Loop) restoreCounters(ctx context.Context) {
	day := l.today()
	if l.deps.Counters != nil {
		c, err := l.deps.Counters.LoadCounters(ctx, day)
		switch {
		case err == nil:
			l.counters.Restore(c)
			l.logger.Info("daily counters restored", slog.String("day", day), slog.Int("trades", c.Trades), slog.Float64("pl", c.PL))
			return
		case !errors.Is(err, domain.ErrNotFound):
			l.logger.Warn("daily counters unavailable", slog.String("error", err.Error()))
		}
	}
	l.counters.Restore(domain.DailyCounters{Day: day, UpdatedAt: l.deps.Now()})
}

// Run starts the loop and ticks until ctx is done or Stop is called. A
// failed start is retried every ReconnectInterval.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("loop: run: already running")
	}
	defer close(l.done)
	defer l.setState(StateStopped)
	if l.stopping.Load() {
		return nil
	}
	ctx = venue.WithAbort(ctx, l.stopCh)

	for {
		err := l.Start(ctx)
		if err == nil {
			break
		}
		l.logger.Warn("start failed, retrying", slog.String("error", err.Error()), slog.Duration("in", l.cfg.ReconnectInterval))
		if !l.sleep(ctx, l.cfg.ReconnectInterval) {
			return nil
		}
	}

	for {
		next := l.Tick(ctx)
		if !l.sleep(ctx, next) {
			l.logger.Info("loop stopped")
			return nil
		}
	}
}

// sleep waits d and reports whether the loop should keep going.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	if l.stopping.Load() {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	case <-t.C:
		return !l.stopping.Load()
	}
}

// Stop asks the loop to finish and waits up to the stop timeout for it to
// reach Stopped. In-flight venue calls complete; no new ones start.
func (l *Loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() {
		l.stopping.Store(true)
		close(l.stopCh)
	})
	if !l.started.Load() {
		l.setState(StateStopped)
		return nil
	}
	t := time.NewTimer(l.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return fmt.Errorf("loop: stop: timed out after %s in state %s", l.cfg.StopTimeout, l.State())
	}
}

func (l *Loop) stopped(ctx context.Context) bool {
	return l.stopping.Load() || ctx.Err() != nil
}

// Tick runs one full cycle and returns how long to sleep before the next.
// Once Stop is called no further venue call is started: retries end at
// their next boundary and the tick returns after the call in flight.
func (l *Loop) Tick(ctx context.Context) time.Duration {
	if l.stopped(ctx) {
		return l.cfg.ClosedInterval
	}
	ctx = venue.WithAbort(ctx, l.stopCh)
	if l.deps.Lock != nil {
		unlock, err := l.deps.Lock.Acquire(ctx, "tradeloop:loop:"+l.deps.Venues.ActiveID(), l.cfg.LockTTL)
		if err != nil {
			l.logger.Warn("tick skipped: loop lock not acquired", slog.String("error", err.Error()))
			return l.cfg.ClosedInterval
		}
		defer unlock()
	}

	profile := l.deps.Profiles.Pin()
	l.noteProfile(ctx, profile)
	l.rollDay(ctx)

	ad := l.deps.Venues.Active()
	if ad == nil {
		l.setState(StateConnecting)
		return l.cfg.ReconnectInterval
	}
	if !ad.Connected() && !ad.Connect(ctx) {
		l.setState(StateConnecting)
		l.activity("warn", ad.PlatformName()+" disconnected, reconnecting")
		return l.cfg.ReconnectInterval
	}

	acct, err := ad.Account(ctx)
	if l.stopped(ctx) {
		return l.cfg.ClosedInterval
	}
	if err != nil {
		l.logger.Warn("account refresh failed", slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrConnection) || errors.Is(err, domain.ErrNotConnected) {
			l.setState(StateConnecting)
		}
		return l.cfg.ReconnectInterval
	}
	l.deps.Risk.ObserveEquity(acct.Equity)
	positions, err := ad.Positions(ctx)
	if l.stopped(ctx) {
		return l.cfg.ClosedInterval
	}
	if err != nil {
		l.logger.Warn("positions refresh failed", slog.String("error", err.Error()))
		return l.cfg.ReconnectInterval
	}
	l.publishSnapshot(acct, positions)

	open := l.deps.Feed.IsMarketOpen(ctx)
	if l.stopped(ctx) {
		return l.cfg.ClosedInterval
	}
	nextOpen, nextClose := l.deps.Feed.NextOpenClose(ctx)
	if l.stopped(ctx) {
		return l.cfg.ClosedInterval
	}
	l.mu.Lock()
	l.marketOpen, l.nextOpen, l.nextClose, l.lastTick = open, nextOpen, nextClose, l.deps.Now()
	l.mu.Unlock()
	push(l.logger, "dashboard", func() { l.deps.Dashboard.PushMarketStatus(open, nextOpen, nextClose) })
	if !open {
		l.setState(StateMarketClosed)
		return l.cfg.ClosedInterval
	}

	if !l.checkHalt(ctx, acct, profile) {
		l.scan(ctx, ad, acct, positions, profile)
	}
	l.monitor(ctx, ad, positions, profile)
	if l.stopped(ctx) {
		return l.cfg.ClosedInterval
	}

	if l.checkHalt(ctx, acct, profile) {
		l.setState(StateHalted)
	} else {
		l.setState(StateScanning)
	}
	return l.cfg.OpenInterval
}

func (l *Loop) noteProfile(ctx context.Context, p domain.RiskProfile) {
	l.mu.Lock()
	prev := l.lastProfile
	l.lastProfile = p.ID
	l.mu.Unlock()
	if prev == "" || prev == p.ID {
		return
	}
	l.logger.Info("risk profile switched", slog.String("from", prev), slog.String("to", p.ID))
	l.activity("info", fmt.Sprintf("risk profile switched from %s to %s", prev, p.ID))
	l.audit(ctx, "profile_switched", map[string]any{"from": prev, "to": p.ID})
}

// rollDay resets the daily counters once when the calendar date advances,
// persists the new row and archives the finished day.
func (l *Loop) rollDay(ctx context.Context) {
	now := l.deps.Now()
	day := now.In(l.cfg.Location).Format(dayLayout)
	prev, rolled := l.counters.Roll(day, now)
	if !rolled {
		return
	}

	l.mu.Lock()
	wasHalted := l.halted
	l.halted, l.haltReason = false, ""
	l.mu.Unlock()

	l.logger.Info("daily counters reset", slog.String("day", day), slog.String("previous", prev.Day))
	if wasHalted {
		l.activity("info", "new trading day, halt cleared")
	}
	l.saveCounters(ctx, l.counters.Daily())
	l.deps.Executor.Cleanup()
	if prev.Day != "" {
		l.archive(ctx, prev, now)
	}
}

func (l *Loop) saveCounters(ctx context.Context, c domain.DailyCounters) {
	if l.deps.Counters == nil {
		return
	}
	if err := l.deps.Counters.SaveCounters(ctx, c); err != nil {
		l.logger.Warn("daily counters not persisted", slog.String("day", c.Day), slog.String("error", err.Error()))
	}
}

func (l *Loop) archive(ctx context.Context, prev domain.DailyCounters, now time.Time) {
	if l.deps.Reports == nil {
		return
	}
	report := domain.DailyReport{
		Day:      prev.Day,
		Venue:    l.deps.Venues.ActiveID(),
		Profile:  l.deps.Profiles.Active().ID,
		Counters: prev,
		ClosedAt: now,
	}
	l.mu.Lock()
	if l.account != nil {
		report.Equity = l.account.Equity
	}
	l.mu.Unlock()

	if start, err := time.ParseInLocation(dayLayout, prev.Day, l.cfg.Location); err == nil && l.deps.Orders != nil {
		end := start.AddDate(0, 0, 1)
		orders, err := l.deps.Orders.List(ctx, domain.ListOpts{Since: &start, Until: &end, Limit: 1000})
		if err != nil {
			l.logger.Warn("report orders unavailable", slog.String("error", err.Error()))
		}
		report.Orders = orders
	}
	if l.deps.Violations != nil {
		for _, v := range l.deps.Violations.History() {
			if v.At.In(l.cfg.Location).Format(dayLayout) == prev.Day {
				report.Violations = append(report.Violations, v)
			}
		}
	}
	if err := l.deps.Reports.ArchiveReport(ctx, report); err != nil {
		l.logger.Warn("daily report not archived", slog.String("day", prev.Day), slog.String("error", err.Error()))
		return
	}
	l.logger.Info("daily report archived", slog.String("day", prev.Day))
}

// checkHalt sets the halted flag when the daily trade cap or the daily
// loss limit has been reached, and reports the flag.
func (l *Loop) checkHalt(ctx context.Context, acct domain.AccountSnapshot, p domain.RiskProfile) bool {
	c := l.counters.Daily()
	var reason string
	switch {
	case l.cfg.MaxTradesPerDay > 0 && c.Trades >= l.cfg.MaxTradesPerDay:
		reason = fmt.Sprintf("daily trade limit reached (%d/%d)", c.Trades, l.cfg.MaxTradesPerDay)
	case c.PL < 0 && -c.PL > acct.Equity*p.MaxDailyLossPct:
		reason = fmt.Sprintf("daily loss limit reached (%.2f > %.2f)", -c.PL, acct.Equity*p.MaxDailyLossPct)
	}

	l.mu.Lock()
	already := l.halted
	if reason != "" && !already {
		l.halted, l.haltReason = true, reason
	}
	halted := l.halted
	l.mu.Unlock()

	if reason != "" && !already {
		l.logger.Warn("new entries halted for the day", slog.String("reason", reason))
		l.activity("warn", "halted: "+reason)
		l.audit(ctx, "loop_halted", map[string]any{"reason": reason, "day": c.Day})
		push(l.logger, "notifier", func() { l.deps.Notifier.NotifySystemEvent(ctx, "halted", reason) })
	}
	return halted
}

func (l *Loop) publishSnapshot(acct domain.AccountSnapshot, positions map[string]domain.Position) {
	cp := make(map[string]domain.Position, len(positions))
	for k, v := range positions {
		cp[k] = v
	}
	l.mu.Lock()
	l.account = &acct
	l.positions = cp
	l.mu.Unlock()

	push(l.logger, "dashboard", func() {
		l.deps.Dashboard.PushAccount(acct)
		for _, sym := range sortedSymbols(cp) {
			l.deps.Dashboard.PushPosition(sym, cp[sym])
		}
	})
}

func sortedSymbols(m map[string]domain.Position) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// scan evaluates every watched symbol that is not already held.
func (l *Loop) scan(ctx context.Context, ad venue.Adapter, acct domain.AccountSnapshot, positions map[string]domain.Position, p domain.RiskProfile) {
	open := len(positions)
	for _, symbol := range l.deps.Watchlist.For(ad.PlatformType()) {
		if l.stopped(ctx) {
			return
		}
		if _, held := positions[symbol]; held {
			continue
		}
		if !l.tryEntry(ctx, ad, acct, open, p, symbol) {
			continue
		}
		open++
		if l.checkHalt(ctx, acct, p) {
			return
		}
	}
}

// tryEntry runs the entry pipeline for one symbol and reports whether a
// position was opened.
func (l *Loop) tryEntry(ctx context.Context, ad venue.Adapter, acct domain.AccountSnapshot, open int, p domain.RiskProfile, symbol string) bool {
	log := l.logger.With(slog.String("symbol", symbol))

	l.setState(StateScanning)
	bars, err := l.deps.Feed.Candles(ctx, symbol, l.cfg.Timeframe, l.cfg.CandleLimit)
	if err != nil || len(bars) < l.cfg.MinBars {
		log.Debug("symbol skipped: insufficient data", slog.Int("bars", len(bars)))
		return false
	}

	l.setState(StateEvaluating)
	sig := l.deps.Signals.Evaluate(ctx, symbol, bars)
	if sig.Action != domain.ActionBuy || sig.Probability < l.cfg.BuyThreshold {
		return false
	}
	if sig.Anomaly {
		log.Info("entry skipped: anomalous market", slog.Float64("probability", sig.Probability))
		return false
	}

	exp := risk.Exposure{OpenPositions: open, DailyPL: l.counters.Daily().PL}
	if err := l.deps.Risk.Check(0, acct, exp); err != nil {
		l.rejected(ctx, symbol, err)
		return false
	}

	l.setState(StateSizing)
	entry := bars[len(bars)-1].Close
	stop := entry * (1 - p.StopLossPct)
	vol := strategy.Volatility(bars)
	qty, ok := l.deps.Risk.SizePosition(entry, stop, acct, &vol)
	if !ok {
		return false
	}
	qty = roundQuantity(qty, ad.PlatformType())
	notional := qty * entry
	if qty <= 0 || notional < l.cfg.MinNotional {
		log.Debug("entry skipped: below minimum notional", slog.Float64("notional", notional))
		return false
	}
	if err := l.deps.Risk.Check(notional, acct, exp); err != nil {
		l.rejected(ctx, symbol, err)
		return false
	}
	if l.stopped(ctx) {
		return false
	}

	l.setState(StateExecuting)
	fill, err := l.deps.Executor.Open(ctx, ad, executor.Entry{
		Symbol:    symbol,
		Side:      domain.OrderSideBuy,
		Quantity:  qty,
		StopPrice: roundPrice(stop),
		Strategy:  p.ID,
		SignalID:  uuid.NewString(),
	})
	if err != nil {
		log.Warn("entry not filled", slog.String("error", err.Error()))
		l.activity("warn", fmt.Sprintf("%s entry failed: %v", symbol, err))
		return false
	}

	c := l.counters.RecordOpen(l.deps.Now())
	l.saveCounters(ctx, c)
	ev := domain.TradeEvent{Action: domain.TradeOpen, Order: fill.Entry, Profile: p.ID, Reason: "signal", At: l.deps.Now()}
	if fill.Stop != nil {
		ev.StopID = fill.Stop.ID
	}
	l.trade(ctx, ev)
	log.Info("position opened",
		slog.Float64("qty", fill.Entry.FilledQuantity),
		slog.Float64("price", fill.Entry.FilledPrice),
		slog.Float64("probability", sig.Probability),
		slog.Int("daily_trades", c.Trades),
	)
	if fill.StopErr != nil {
		l.activity("error", fmt.Sprintf("%s protective stop missing: %v", symbol, fill.StopErr))
		push(l.logger, "notifier", func() {
			l.deps.Notifier.NotifySystemEvent(ctx, "protective_stop_failed", fill.StopErr.Error())
		})
	}
	return true
}

func (l *Loop) rejected(ctx context.Context, symbol string, err error) {
	l.logger.Info("entry rejected by risk engine", slog.String("symbol", symbol), slog.String("reason", err.Error()))
	var ve *risk.ViolationError
	if errors.As(err, &ve) && ve.Severity() == domain.SeverityHigh {
		v := ve.Violation
		v.Symbol = symbol
		push(l.logger, "notifier", func() { l.deps.Notifier.NotifyViolation(ctx, v) })
	}
}

// monitor evaluates exits for every open position. It runs even while
// halted.
func (l *Loop) monitor(ctx context.Context, ad venue.Adapter, positions map[string]domain.Position, p domain.RiskProfile) {
	l.setState(StateMonitoring)
	for _, symbol := range sortedSymbols(positions) {
		if l.stopped(ctx) {
			return
		}
		pos := positions[symbol]
		reason := l.exitReason(ctx, pos, p)
		if reason == "" {
			continue
		}
		strat := pos.Strategy
		if strat == "" {
			strat = p.ID
		}
		order, err := l.deps.Executor.Close(ctx, ad, pos, strat, reason)
		if err != nil {
			l.logger.Warn("exit not filled", slog.String("symbol", symbol), slog.String("error", err.Error()))
			l.activity("warn", fmt.Sprintf("%s exit failed: %v", symbol, err))
			// A partial exit still realized P/L.
			if order.FilledQuantity <= 0 {
				continue
			}
		}
		c := l.counters.RecordClose(strat, order.RealizedPnL, l.deps.Now())
		l.saveCounters(ctx, c)
		l.trade(ctx, domain.TradeEvent{Action: domain.TradeClose, Order: order, Profile: p.ID, Reason: reason, At: l.deps.Now()})
	}
}

// exitReason returns why pos should be closed, or "".
func (l *Loop) exitReason(ctx context.Context, pos domain.Position, p domain.RiskProfile) string {
	pct := pos.UnrealizedPnLPct()
	switch {
	case p.StopLossPct > 0 && pct <= -p.StopLossPct:
		return "stop_loss"
	case p.TakeProfitPct > 0 && pct >= p.TakeProfitPct:
		return "take_profit"
	}

	bars, err := l.deps.Feed.Candles(ctx, pos.Symbol, l.cfg.Timeframe, l.cfg.CandleLimit)
	if err != nil || len(bars) < l.cfg.MinBars {
		return ""
	}
	sig := l.deps.Signals.Evaluate(ctx, pos.Symbol, bars)
	contrary := (pos.Side == domain.PositionSideLong && sig.Action == domain.ActionSell) ||
		(pos.Side == domain.PositionSideShort && sig.Action == domain.ActionBuy)
	if contrary && sig.Probability >= l.cfg.ExitThreshold {
		return "signal"
	}
	return ""
}

func (l *Loop) trade(ctx context.Context, ev domain.TradeEvent) {
	push(l.logger, "dashboard", func() { l.deps.Dashboard.PushTrade(ev) })
	push(l.logger, "notifier", func() { l.deps.Notifier.NotifyTrade(ctx, ev) })
	l.audit(ctx, "trade_"+string(ev.Action), map[string]any{
		"order_id": ev.Order.ID,
		"symbol":   ev.Order.Symbol,
		"qty":      ev.Order.FilledQuantity,
		"price":    ev.Order.FilledPrice,
		"pnl":      ev.Order.RealizedPnL,
		"reason":   ev.Reason,
		"profile":  ev.Profile,
	})
}

func (l *Loop) activity(level, msg string) {
	now := l.deps.Now()
	push(l.logger, "dashboard", func() { l.deps.Dashboard.PushActivity(level, msg, now) })
}

func (l *Loop) audit(ctx context.Context, event string, detail map[string]any) {
	if l.deps.Audit == nil {
		return
	}
	if err := l.deps.Audit.Log(ctx, event, detail); err != nil {
		l.logger.Warn("audit log write failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// Status returns a snapshot copy of the loop state.
func (l *Loop) Status() Status {
	l.mu.Lock()
	st := Status{
		State:      l.state,
		Halted:     l.halted,
		HaltReason: l.haltReason,
		MarketOpen: l.marketOpen,
		NextOpen:   l.nextOpen,
		NextClose:  l.nextClose,
		LastTick:   l.lastTick,
		Positions:  make([]domain.Position, 0, len(l.positions)),
	}
	if l.account != nil {
		acct := *l.account
		st.Account = &acct
	}
	for _, sym := range sortedSymbols(l.positions) {
		st.Positions = append(st.Positions, l.positions[sym])
	}
	l.mu.Unlock()

	st.Venue = l.deps.Venues.ActiveID()
	st.Profile = l.deps.Profiles.Active().ID
	st.Counters = l.counters.Daily()
	st.Tally = l.counters.Tallies()
	return st
}

// roundQuantity floors equities to whole shares and other venues to
// hundredths (micro lots).
func roundQuantity(qty float64, vt domain.VenueType) float64 {
	places := int32(2)
	if vt == domain.VenueTypeEquities {
		places = 0
	}
	f, _ := decimal.NewFromFloat(qty).Truncate(places).Float64()
	return f
}

// roundPrice rounds a stop price to cents, or to five decimals for
// prices under ten (forex quotes).
func roundPrice(px float64) float64 {
	places := int32(2)
	if px < 10 {
		places = 5
	}
	f, _ := decimal.NewFromFloat(px).Round(places).Float64()
	return f
}
