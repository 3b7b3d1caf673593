package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// DashboardSink receives status and events for display. Pushes are
// fire-and-forget.
type DashboardSink interface {
	PushAccount(acct domain.AccountSnapshot)
	PushPosition(symbol string, p domain.Position)
	PushTrade(ev domain.TradeEvent)
	PushActivity(level, message string, at time.Time)
	PushMarketStatus(open bool, nextOpen, nextClose time.Time)
}

// NotificationSink delivers alerts to operators. Calls are fire-and-forget.
type NotificationSink interface {
	NotifyTrade(ctx context.Context, ev domain.TradeEvent)
	NotifyViolation(ctx context.Context, v domain.Violation)
	NotifySystemEvent(ctx context.Context, kind, message string)
}

// NopDashboard discards everything.
type NopDashboard struct{}

func (NopDashboard) PushAccount(domain.AccountSnapshot)          {}
func (NopDashboard) PushPosition(string, domain.Position)        {}
func (NopDashboard) PushTrade(domain.TradeEvent)                 {}
func (NopDashboard) PushActivity(string, string, time.Time)      {}
func (NopDashboard) PushMarketStatus(bool, time.Time, time.Time) {}

// NopNotifier discards everything.
type NopNotifier struct{}

func (NopNotifier) NotifyTrade(context.Context, domain.TradeEvent)    {}
func (NopNotifier) NotifyViolation(context.Context, domain.Violation) {}
func (NopNotifier) NotifySystemEvent(context.Context, string, string) {}

// push runs a sink call and swallows a panic so a broken sink can never
// take the loop down.
func push(logger *slog.Logger, sink string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			logger.Warn("sink push panicked", slog.String("sink", sink), slog.Any("panic", v))
		}
	}()
	fn()
}
