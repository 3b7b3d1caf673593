package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// Venues yields the active venue. *venue.Registry satisfies it.
type Venues interface {
	Active() venue.Adapter
}

// Alerter receives violations that survive severity routing. Delivery is
// fire-and-forget.
type Alerter interface {
	NotifyViolation(ctx context.Context, v domain.Violation)
}

// EquitySample is one entry of the bounded portfolio history.
type EquitySample struct {
	At       time.Time `json:"at"`
	Equity   float64   `json:"equity"`
	Cash     float64   `json:"cash"`
	Drawdown float64   `json:"drawdown"`
}

// Summary is a point-in-time view of audit state for status queries.
type Summary struct {
	Equity          float64            `json:"equity"`
	Peak            float64            `json:"peak"`
	Drawdown        float64            `json:"drawdown"`
	LastAudit       time.Time          `json:"last_audit"`
	High24h         int                `json:"high_violations_24h"`
	Medium24h       int                `json:"medium_violations_24h"`
	Status          domain.Severity    `json:"risk_status"`
	Profile         domain.RiskProfile `json:"profile"`
	MaxDrawdownPct  float64            `json:"max_drawdown_pct"`
	MaxTotalRiskPct float64            `json:"max_total_risk_pct"`
}

// Auditor scans open exposure for limit breaches, routes them by severity
// and applies the paper-only emergency stop.
type Auditor struct {
	engine *Engine
	venues Venues
	alerts Alerter
	store  domain.ViolationStore
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	history   []domain.Violation
	equity    []EquitySample
	lastAudit time.Time
}

// NewAuditor creates an Auditor. alerts and store may be nil.
func NewAuditor(engine *Engine, venues Venues, alerts Alerter, store domain.ViolationStore, logger *slog.Logger) *Auditor {
	return &Auditor{
		engine: engine,
		venues: venues,
		alerts: alerts,
		store:  store,
		logger: logger.With(slog.String("component", "risk_auditor")),
		now:    time.Now,
	}
}

func findOrder(orders []domain.Order, symbol string, match func(domain.Order) bool) *domain.Order {
	for i := range orders {
		if orders[i].Symbol == symbol && match(orders[i]) {
			return &orders[i]
		}
	}
	return nil
}

// AuditPortfolio returns every breach found in one pass over the account,
// its positions and its resting orders. Amount at risk is the linear sum
// of per-position stop distances; correlated exposure is not netted.
func (a *Auditor) AuditPortfolio(acct domain.AccountSnapshot, positions map[string]domain.Position, openOrders []domain.Order) []domain.Violation {
	cfg := a.engine.Config()
	p := a.engine.Profile()
	now := a.now()
	var out []domain.Violation

	dd := a.engine.ObserveEquity(acct.Equity)
	if dd > cfg.MaxDrawdownPct {
		out = append(out, domain.Violation{
			Type: domain.ViolationDrawdown, Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("maximum drawdown exceeded: %.2f%% > %.2f%%", dd*100, cfg.MaxDrawdownPct*100),
			Value:   dd, Limit: cfg.MaxDrawdownPct, At: now,
		})
	}

	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var totalAtRisk float64
	for _, sym := range symbols {
		pos := positions[sym]
		long := pos.Side != domain.PositionSideShort
		closing := pos.ClosingSide()
		current := pos.CurrentPrice
		if current <= 0 {
			current = pos.EntryPrice
		}

		if acct.Equity > 0 {
			if pct := pos.Notional() / acct.Equity; pct > p.MaxPositionSizePct {
				out = append(out, domain.Violation{
					Type: domain.ViolationPositionSize, Severity: domain.SeverityMedium, Symbol: sym,
					Message: fmt.Sprintf("position size for %s exceeds maximum: %.2f%% > %.2f%%", sym, pct*100, p.MaxPositionSizePct*100),
					Value:   pct, Limit: p.MaxPositionSizePct, At: now,
				})
			}
		}

		stop := findOrder(openOrders, sym, func(o domain.Order) bool {
			return o.IsProtective(closing) && o.StopPrice != nil
		})
		if stop == nil {
			if p.StopLossRequired {
				out = append(out, domain.Violation{
					Type: domain.ViolationMissingStopLoss, Severity: domain.SeverityHigh, Symbol: sym,
					Message: fmt.Sprintf("no stop loss order found for %s", sym),
					At:      now,
				})
			}
			continue
		}

		atRisk := (current - *stop.StopPrice) * pos.Quantity
		if !long {
			atRisk = (*stop.StopPrice - current) * pos.Quantity
		}
		totalAtRisk += atRisk

		if pos.OpenedAt.IsZero() || now.Sub(pos.OpenedAt) >= cfg.RiskRewardLookback {
			continue
		}
		tp := findOrder(openOrders, sym, func(o domain.Order) bool { return o.IsTakeProfit(closing) })
		if tp == nil || atRisk <= 0 {
			continue
		}
		reward := (*tp.LimitPrice - current) * pos.Quantity
		if !long {
			reward = (current - *tp.LimitPrice) * pos.Quantity
		}
		if ratio := reward / atRisk; ratio < p.MinRiskRewardRatio {
			out = append(out, domain.Violation{
				Type: domain.ViolationRiskReward, Severity: domain.SeverityMedium, Symbol: sym,
				Message: fmt.Sprintf("risk/reward ratio for %s below minimum: %.2f < %.2f", sym, ratio, p.MinRiskRewardRatio),
				Value:   ratio, Limit: p.MinRiskRewardRatio, At: now,
			})
		}
	}

	if totalAtRisk > 0 && acct.Equity > 0 {
		if pct := totalAtRisk / acct.Equity; pct > cfg.MaxTotalRiskPct {
			out = append(out, domain.Violation{
				Type: domain.ViolationTotalRisk, Severity: domain.SeverityHigh,
				Message: fmt.Sprintf("total portfolio at risk exceeds maximum: %.2f%% > %.2f%%", pct*100, cfg.MaxTotalRiskPct*100),
				Value:   pct, Limit: cfg.MaxTotalRiskPct, At: now,
			})
		}
	}

	a.record(out, EquitySample{At: now, Equity: acct.Equity, Cash: acct.Cash, Drawdown: dd})
	return out
}

func (a *Auditor) record(vs []domain.Violation, sample EquitySample) {
	limit := a.engine.Config().HistorySize
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAudit = sample.At
	a.history = append(a.history, vs...)
	if n := len(a.history); n > limit {
		a.history = append([]domain.Violation(nil), a.history[n-limit:]...)
	}
	a.equity = append(a.equity, sample)
	if n := len(a.equity); n > limit {
		a.equity = append([]EquitySample(nil), a.equity[n-limit:]...)
	}
}

// Route logs every violation and forwards alerts: high severity always,
// medium only when at least MediumAlertMin occur in the same pass, low
// never.
func (a *Auditor) Route(ctx context.Context, vs []domain.Violation) {
	var high, medium []domain.Violation
	for _, v := range vs {
		attrs := []any{
			slog.String("type", string(v.Type)),
			slog.String("symbol", v.Symbol),
			slog.String("message", v.Message),
		}
		switch v.Severity {
		case domain.SeverityHigh:
			a.logger.Warn("high risk violation", attrs...)
			high = append(high, v)
		case domain.SeverityMedium:
			a.logger.Info("medium risk violation", attrs...)
			medium = append(medium, v)
		default:
			a.logger.Info("low risk violation", attrs...)
		}
	}
	if a.alerts == nil {
		return
	}
	for _, v := range high {
		a.alerts.NotifyViolation(ctx, v)
	}
	if len(medium) >= a.engine.Config().MediumAlertMin {
		for _, v := range medium {
			a.alerts.NotifyViolation(ctx, v)
		}
	}
}

// Remediate places an emergency protective stop for a high-severity
// missing stop on a paper venue. It reports whether an order was placed.
// Live venues are never remediated automatically.
func (a *Auditor) Remediate(ctx context.Context, v domain.Violation) (bool, error) {
	if v.Type != domain.ViolationMissingStopLoss || v.Severity != domain.SeverityHigh || v.Symbol == "" {
		return false, nil
	}
	ad := a.venues.Active()
	if ad == nil {
		return false, fmt.Errorf("risk: remediate %s: %w", v.Symbol, domain.ErrNotConnected)
	}
	if ad.Live() {
		a.logger.Warn("missing stop on live venue, alert only", slog.String("symbol", v.Symbol))
		return false, nil
	}

	positions, err := ad.Positions(ctx)
	if err != nil {
		return false, fmt.Errorf("risk: remediate %s: positions: %w", v.Symbol, err)
	}
	pos, ok := positions[v.Symbol]
	if !ok {
		return false, nil
	}
	current := pos.CurrentPrice
	if current <= 0 {
		if current, err = ad.CurrentPrice(ctx, v.Symbol); err != nil {
			return false, fmt.Errorf("risk: remediate %s: price: %w", v.Symbol, err)
		}
	}

	pct := a.engine.Config().EmergencyStopPct
	stop := current * (1 - pct)
	if pos.Side == domain.PositionSideShort {
		stop = current * (1 + pct)
	}
	o, err := ad.PlaceOrder(ctx, domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        v.Symbol,
		Quantity:      pos.Quantity,
		Side:          pos.ClosingSide(),
		Type:          domain.OrderTypeStop,
		TimeInForce:   domain.TimeInForceGTC,
		StopPrice:     domain.Float64Ptr(stop),
		Strategy:      "emergency_stop",
	})
	if err != nil {
		return false, fmt.Errorf("risk: remediate %s: place stop: %w", v.Symbol, err)
	}
	a.logger.Info("emergency stop placed",
		slog.String("symbol", v.Symbol),
		slog.String("order_id", o.ID),
		slog.Float64("stop_price", stop),
	)
	return true, nil
}

// Run performs one audit against the active venue: snapshot, audit,
// persist, route, remediate.
func (a *Auditor) Run(ctx context.Context) ([]domain.Violation, error) {
	ad := a.venues.Active()
	if ad == nil {
		return nil, fmt.Errorf("risk: audit: %w", domain.ErrNotConnected)
	}
	acct, err := ad.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk: audit: account: %w", err)
	}
	positions, err := ad.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk: audit: positions: %w", err)
	}
	orders, err := ad.Orders(ctx, venue.OrdersOpen)
	if err != nil {
		return nil, fmt.Errorf("risk: audit: open orders: %w", err)
	}

	vs := a.AuditPortfolio(acct, positions, orders)
	a.logger.Info("risk check completed", slog.Int("violations", len(vs)), slog.Int("positions", len(positions)))

	if a.store != nil {
		for _, v := range vs {
			if err := a.store.Insert(ctx, v); err != nil {
				a.logger.Warn("violation not persisted", slog.String("error", err.Error()))
			}
		}
	}
	a.Route(ctx, vs)
	for _, v := range vs {
		if _, err := a.Remediate(ctx, v); err != nil {
			a.logger.Error("remediation failed", slog.String("symbol", v.Symbol), slog.String("error", err.Error()))
		}
	}
	return vs, nil
}

// History returns a copy of the bounded violation history, oldest first.
func (a *Auditor) History() []domain.Violation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Violation(nil), a.history...)
}

// EquityHistory returns a copy of the bounded portfolio history.
func (a *Auditor) EquityHistory() []EquitySample {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]EquitySample(nil), a.equity...)
}

// Summary reports the latest audit state with 24-hour violation counts.
func (a *Auditor) Summary() Summary {
	cfg := a.engine.Config()
	now := a.now()
	a.mu.Lock()
	s := Summary{LastAudit: a.lastAudit, Status: domain.SeverityLow}
	for _, v := range a.history {
		if now.Sub(v.At) >= 24*time.Hour {
			continue
		}
		switch v.Severity {
		case domain.SeverityHigh:
			s.High24h++
		case domain.SeverityMedium:
			s.Medium24h++
		}
	}
	if n := len(a.equity); n > 0 {
		s.Equity = a.equity[n-1].Equity
		s.Drawdown = a.equity[n-1].Drawdown
	}
	a.mu.Unlock()

	switch {
	case s.High24h > 0:
		s.Status = domain.SeverityHigh
	case s.Medium24h > 1:
		s.Status = domain.SeverityMedium
	}
	s.Peak = a.engine.Peak()
	s.Profile = a.engine.Profile()
	s.MaxDrawdownPct = cfg.MaxDrawdownPct
	s.MaxTotalRiskPct = cfg.MaxTotalRiskPct
	return s
}
