package risk

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
	"github.com/alanyoungcy/tradeloop/internal/venue/paper"
)

type staticProfile struct{ p domain.RiskProfile }

func (s staticProfile) Active() domain.RiskProfile { return s.p }

func moderate() domain.RiskProfile {
	return domain.RiskProfile{
		ID: "moderate", Name: "Moderate", Description: "balanced", RiskLevel: domain.RiskLevelMedium,
		MaxPositionSizePct: 0.10, StopLossPct: 0.025, TakeProfitPct: 0.075, MaxDailyLossPct: 0.02,
		MaxOpenPositions: 8, MinRiskRewardRatio: 2.0, RiskPerTrade: 0.01, StopLossRequired: true,
	}
}

type recordingAlerter struct {
	mu   sync.Mutex
	sent []domain.Violation
}

func (r *recordingAlerter) NotifyViolation(_ context.Context, v domain.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, v)
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type memViolations struct {
	mu   sync.Mutex
	rows []domain.Violation
}

func (m *memViolations) Insert(_ context.Context, v domain.Violation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, v)
	return nil
}

func (m *memViolations) ListRecent(_ context.Context, limit int) ([]domain.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.rows) {
		limit = len(m.rows)
	}
	return append([]domain.Violation(nil), m.rows[len(m.rows)-limit:]...), nil
}

// single is a Venues with a fixed adapter.
type single struct{ a venue.Adapter }

func (s single) Active() venue.Adapter { return s.a }

// liveVenue reports itself as live so remediation must refuse to act.
type liveVenue struct{ *paper.Adapter }

func (liveVenue) Live() bool { return true }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
