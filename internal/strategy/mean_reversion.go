package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// MeanReversion buys when the last close is significantly below the mean
// of the slow window and sells when it is significantly above.
// "Significantly" is measured in multiples of the window's standard
// deviation.
type MeanReversion struct {
	cfg    Config
	logger *slog.Logger
}

var (
	_ Provider      = (*MeanReversion)(nil)
	_ AnomalyScorer = (*MeanReversion)(nil)
)

// NewMeanReversion creates the provider. The window is cfg.SlowPeriod bars.
func NewMeanReversion(cfg Config, logger *slog.Logger) *MeanReversion {
	return &MeanReversion{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "mean_reversion")),
	}
}

// Name returns the provider identifier.
func (mr *MeanReversion) Name() string { return "mean_reversion" }

// GenerateSignal scores the last close against the trailing window.
func (mr *MeanReversion) GenerateSignal(_ context.Context, bars []domain.Bar) (domain.Recommendation, error) {
	n := mr.cfg.SlowPeriod
	if len(bars) < n+1 {
		return domain.Hold, fmt.Errorf("mean_reversion: %w: need %d bars, have %d", domain.ErrDataUnavailable, n+1, len(bars))
	}
	window := closes(bars[len(bars)-n-1 : len(bars)-1])
	avg, sd := meanStd(window)
	if sd == 0 || avg == 0 {
		return domain.Hold, nil
	}

	last := bars[len(bars)-1].Close
	deviation := (last - avg) / sd
	threshold := mr.cfg.ZScoreThreshold
	if math.Abs(deviation) < threshold {
		return domain.Hold, nil
	}

	// Probability grows from 0.5 at the threshold to 1.0 at twice it.
	prob := 0.5 + 0.5*math.Min((math.Abs(deviation)-threshold)/threshold, 1)
	rec := domain.Recommendation{
		Action:         domain.ActionSell,
		Probability:    prob,
		TakeProfitHint: domain.Float64Ptr(avg),
	}
	if deviation < 0 {
		rec.Action = domain.ActionBuy
	}
	mr.logger.Debug("mean reversion signal",
		slog.String("action", string(rec.Action)),
		slog.Float64("last", last),
		slog.Float64("avg", avg),
		slog.Float64("deviation", deviation),
	)
	return rec, nil
}

// Anomalous reports whether the last bar's return is an outlier against
// the earlier returns, or the last close is a flash crash.
func (mr *MeanReversion) Anomalous(_ context.Context, bars []domain.Bar) (bool, error) {
	r := Returns(bars)
	if len(r) < 3 {
		return false, nil
	}
	mean, sd := meanStd(r[:len(r)-1])
	if sd > 0 && math.Abs(r[len(r)-1]-mean)/sd >= mr.cfg.AnomalyZScore {
		return true, nil
	}
	return DetectFlashCrash(bars, 0.10), nil
}
