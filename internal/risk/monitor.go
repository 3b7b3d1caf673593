package risk

import (
	"context"
	"log/slog"
	"time"
)

// Monitor runs the auditor on its own cadence, independent of the trading
// loop's tick.
type Monitor struct {
	auditor  *Auditor
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor that audits every interval.
func NewMonitor(auditor *Auditor, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		auditor:  auditor,
		interval: interval,
		logger:   logger.With(slog.String("component", "risk_monitor")),
	}
}

// Run audits immediately and then on every tick until ctx is cancelled.
// Audit failures are logged and never end the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("risk monitoring started", slog.Duration("interval", m.interval))
	m.once(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("risk monitoring stopped")
			return ctx.Err()
		case <-ticker.C:
			m.once(ctx)
		}
	}
}

func (m *Monitor) once(ctx context.Context) {
	if _, err := m.auditor.Run(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("risk audit failed", slog.String("error", err.Error()))
	}
}
