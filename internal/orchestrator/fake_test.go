package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
	"github.com/alanyoungcy/tradeloop/internal/venue/paper"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func moderate() domain.RiskProfile {
	return domain.RiskProfile{
		ID: "moderate", Name: "Moderate", Description: "balanced", RiskLevel: domain.RiskLevelMedium,
		MaxPositionSizePct: 0.10, StopLossPct: 0.025, TakeProfitPct: 0.075, MaxDailyLossPct: 0.02,
		MaxOpenPositions: 8, MinRiskRewardRatio: 2.0, RiskPerTrade: 0.01, StopLossRequired: true,
	}
}

// liveProfile is a switchable profile selection.
type liveProfile struct {
	mu sync.Mutex
	p  domain.RiskProfile
}

func (l *liveProfile) Active() domain.RiskProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p
}

func (l *liveProfile) set(p domain.RiskProfile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p = p
}

// scripted returns a fixed signal per symbol and Hold otherwise.
type scripted struct {
	mu    sync.Mutex
	sigs  map[string]domain.Signal
	calls int
}

func (s *scripted) set(symbol string, a domain.Action, prob float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sigs == nil {
		s.sigs = map[string]domain.Signal{}
	}
	s.sigs[symbol] = domain.Signal{Symbol: symbol, Action: a, Probability: prob}
}

func (s *scripted) setSignal(sig domain.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sigs == nil {
		s.sigs = map[string]domain.Signal{}
	}
	s.sigs[sig.Symbol] = sig
}

func (s *scripted) Evaluate(_ context.Context, symbol string, _ []domain.Bar) domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if sig, ok := s.sigs[symbol]; ok {
		return sig
	}
	return domain.Signal{Symbol: symbol, Action: domain.ActionHold}
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type watch []string

func (w watch) For(domain.VenueType) []string { return w }

type recDashboard struct {
	mu       sync.Mutex
	trades   []domain.TradeEvent
	activity []string
	market   []bool
	accounts int
}

func (d *recDashboard) PushAccount(domain.AccountSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts++
}

func (d *recDashboard) PushPosition(string, domain.Position) {}

func (d *recDashboard) PushTrade(ev domain.TradeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trades = append(d.trades, ev)
}

func (d *recDashboard) PushActivity(_ string, msg string, _ time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activity = append(d.activity, msg)
}

func (d *recDashboard) PushMarketStatus(open bool, _, _ time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.market = append(d.market, open)
}

func (d *recDashboard) tradeEvents() []domain.TradeEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.TradeEvent(nil), d.trades...)
}

// panicDashboard fails every push.
type panicDashboard struct{}

func (panicDashboard) PushAccount(domain.AccountSnapshot)          { panic("closed") }
func (panicDashboard) PushPosition(string, domain.Position)        { panic("closed") }
func (panicDashboard) PushTrade(domain.TradeEvent)                 { panic("closed") }
func (panicDashboard) PushActivity(string, string, time.Time)      { panic("closed") }
func (panicDashboard) PushMarketStatus(bool, time.Time, time.Time) { panic("closed") }

type recNotifier struct {
	mu         sync.Mutex
	events     []string
	violations []domain.Violation
	trades     int
}

func (n *recNotifier) NotifyTrade(context.Context, domain.TradeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades++
}

func (n *recNotifier) NotifyViolation(_ context.Context, v domain.Violation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.violations = append(n.violations, v)
}

func (n *recNotifier) NotifySystemEvent(_ context.Context, kind, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind)
}

func (n *recNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type memCounters struct {
	mu   sync.Mutex
	rows map[string]domain.DailyCounters
}

func newMemCounters() *memCounters { return &memCounters{rows: map[string]domain.DailyCounters{}} }

func (m *memCounters) LoadCounters(_ context.Context, day string) (domain.DailyCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[day]
	if !ok {
		return domain.DailyCounters{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *memCounters) SaveCounters(_ context.Context, c domain.DailyCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[c.Day] = c
	return nil
}

func (m *memCounters) get(day string) (domain.DailyCounters, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[day]
	return c, ok
}

type memReports struct {
	mu      sync.Mutex
	reports []domain.DailyReport
}

func (m *memReports) ArchiveReport(_ context.Context, r domain.DailyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memReports) LoadReport(_ context.Context, day string) (domain.DailyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.Day == day {
			return r, nil
		}
	}
	return domain.DailyReport{}, domain.ErrNotFound
}

func (m *memReports) Days(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days := make([]string, 0, len(m.reports))
	for _, r := range m.reports {
		days = append(days, r.Day)
	}
	return days, nil
}

func (m *memReports) all() []domain.DailyReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DailyReport(nil), m.reports...)
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (m *memAudit) has(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e == event {
			return true
		}
	}
	return false
}

// clock is a settable time source shared by the loop and the paper venue.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// stallingVenue fails every account read with a transient error, so the
// read sits in its retry backoff. onAttempt runs before each try.
type stallingVenue struct {
	*paper.Adapter
	onAttempt func()

	attempts  atomic.Int32
	positions atomic.Int32
}

func (s *stallingVenue) Account(ctx context.Context) (domain.AccountSnapshot, error) {
	err := venue.Retry(ctx, venue.RetryPolicy{Attempts: 5, BaseDelay: time.Hour}, func(int) error {
		s.attempts.Add(1)
		if s.onAttempt != nil {
			s.onAttempt()
		}
		return domain.ErrConnection
	})
	return domain.AccountSnapshot{}, err
}

func (s *stallingVenue) Positions(ctx context.Context) (map[string]domain.Position, error) {
	s.positions.Add(1)
	return s.Adapter.Positions(ctx)
}
