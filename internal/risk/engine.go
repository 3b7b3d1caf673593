// Package risk gatekeeps new exposure and audits existing exposure against
// the active risk profile and the portfolio-level limits.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Config holds the limits that live outside any single profile.
type Config struct {
	MaxDrawdownPct      float64
	MaxTotalRiskPct     float64
	VolatilityThreshold float64 // 0 disables the volatility gate
	EmergencyStopPct    float64
	RiskRewardLookback  time.Duration
	HistorySize         int
	MediumAlertMin      int
}

// DefaultConfig returns the stock portfolio limits.
func DefaultConfig() Config {
	return Config{
		MaxDrawdownPct:      0.10,
		MaxTotalRiskPct:     0.20,
		VolatilityThreshold: 0.20,
		EmergencyStopPct:    0.02,
		RiskRewardLookback:  24 * time.Hour,
		HistorySize:         1440,
		MediumAlertMin:      2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxDrawdownPct <= 0 {
		c.MaxDrawdownPct = d.MaxDrawdownPct
	}
	if c.MaxTotalRiskPct <= 0 {
		c.MaxTotalRiskPct = d.MaxTotalRiskPct
	}
	if c.EmergencyStopPct <= 0 {
		c.EmergencyStopPct = d.EmergencyStopPct
	}
	if c.RiskRewardLookback <= 0 {
		c.RiskRewardLookback = d.RiskRewardLookback
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.MediumAlertMin <= 0 {
		c.MediumAlertMin = d.MediumAlertMin
	}
	return c
}

// ProfileSource yields the active risk profile. *catalog.Catalog
// satisfies it.
type ProfileSource interface {
	Active() domain.RiskProfile
}

// Exposure is the loop-owned state a pre-trade check needs besides the
// account snapshot.
type Exposure struct {
	OpenPositions int
	DailyPL       float64
}

// Engine performs pre-trade checks and position sizing. The equity peak is
// its only state.
type Engine struct {
	cfg      Config
	profiles ProfileSource
	logger   *slog.Logger

	mu   sync.Mutex
	peak float64
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, profiles ProfileSource, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		profiles: profiles,
		logger:   logger.With(slog.String("component", "risk_engine")),
	}
}

// Config returns the effective limits.
func (e *Engine) Config() Config { return e.cfg }

// Profile returns the profile checks are currently made against.
func (e *Engine) Profile() domain.RiskProfile { return e.profiles.Active() }

// ObserveEquity raises the peak watermark if equity exceeds it and returns
// the resulting drawdown fraction.
func (e *Engine) ObserveEquity(equity float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if equity > e.peak {
		e.peak = equity
	}
	if e.peak <= 0 {
		return 0
	}
	return (e.peak - equity) / e.peak
}

// Peak returns the highest equity observed so far.
func (e *Engine) Peak() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peak
}

// Check evaluates, in order, the per-position size cap, the open position
// count, the drawdown limit and the daily loss limit. candidate is the
// notional of the proposed position. The peak equity watermark is raised
// on every call, before any check can fail. The first failing check is
// returned as a *ViolationError.
func (e *Engine) Check(candidate float64, acct domain.AccountSnapshot, exp Exposure) error {
	p := e.profiles.Active()
	now := acct.CapturedAt
	dd := e.ObserveEquity(acct.Equity)

	maxSize := p.MaxPositionSizePct * acct.Equity
	if candidate > maxSize {
		return &ViolationError{Violation: domain.Violation{
			Type: domain.ViolationPositionSize, Severity: domain.SeverityMedium,
			Message: fmt.Sprintf("candidate size %.2f exceeds max position size %.2f", candidate, maxSize),
			Value:   candidate, Limit: maxSize, At: now,
		}}
	}

	if exp.OpenPositions >= p.MaxOpenPositions {
		return &ViolationError{Violation: domain.Violation{
			Type: domain.ViolationPositionSize, Severity: domain.SeverityLow,
			Message: fmt.Sprintf("open positions %d at limit %d", exp.OpenPositions, p.MaxOpenPositions),
			Value:   float64(exp.OpenPositions), Limit: float64(p.MaxOpenPositions), At: now,
		}}
	}

	if dd > e.cfg.MaxDrawdownPct {
		return &ViolationError{Violation: domain.Violation{
			Type: domain.ViolationDrawdown, Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("drawdown %.2f%% exceeds %.2f%%", dd*100, e.cfg.MaxDrawdownPct*100),
			Value:   dd, Limit: e.cfg.MaxDrawdownPct, At: now,
		}}
	}

	maxLoss := p.MaxDailyLossPct * acct.Equity
	if loss := -exp.DailyPL; loss > maxLoss {
		return &ViolationError{Violation: domain.Violation{
			Type: domain.ViolationTotalRisk, Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("daily loss %.2f exceeds %.2f", loss, maxLoss),
			Value:   loss, Limit: maxLoss, At: now,
		}}
	}
	return nil
}

// CanOpenPosition is Check reduced to a yes/no answer. Rejections are
// logged.
func (e *Engine) CanOpenPosition(candidate float64, acct domain.AccountSnapshot, exp Exposure) bool {
	if err := e.Check(candidate, acct, exp); err != nil {
		e.logger.Info("position rejected", slog.String("reason", err.Error()))
		return false
	}
	return true
}

// SizePosition returns the quantity that risks equity × risk_per_trade
// between entry and stop, clamped so its notional never exceeds the
// profile's max position size. It reports false when the distance is
// zero, the profile carries no per-trade risk, or volatility is above the
// configured threshold.
func (e *Engine) SizePosition(entry, stop float64, acct domain.AccountSnapshot, volatility *float64) (float64, bool) {
	p := e.profiles.Active()
	if entry <= 0 || acct.Equity <= 0 || p.RiskPerTrade <= 0 {
		return 0, false
	}
	perUnit := math.Abs(entry - stop)
	if perUnit == 0 {
		return 0, false
	}
	if volatility != nil && e.cfg.VolatilityThreshold > 0 && *volatility > e.cfg.VolatilityThreshold {
		e.logger.Info("sizing skipped: volatility above threshold",
			slog.Float64("volatility", *volatility),
			slog.Float64("threshold", e.cfg.VolatilityThreshold),
		)
		return 0, false
	}

	size := acct.Equity * p.RiskPerTrade / perUnit
	if maxUnits := p.MaxPositionSizePct * acct.Equity / entry; size > maxUnits {
		size = maxUnits
	}
	return size, true
}
