package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// smaSpreadScale is the fast/slow spread at which confidence saturates.
const smaSpreadScale = 0.02

// SMACross follows the fast/slow moving-average relationship: long while
// the fast average is above the slow one, short while below.
type SMACross struct {
	fast, slow int
}

var _ Provider = (*SMACross)(nil)

// NewSMACross creates the provider. Periods are clamped so fast < slow.
func NewSMACross(cfg Config) *SMACross {
	fast, slow := cfg.FastPeriod, cfg.SlowPeriod
	if fast <= 0 {
		fast = DefaultConfig().FastPeriod
	}
	if slow <= fast {
		slow = fast * 3
	}
	return &SMACross{fast: fast, slow: slow}
}

func (s *SMACross) Name() string { return "sma_cross" }

// GenerateSignal maps the relative spread between the averages to a
// probability in [0.5, 1]. The stop hint is the lowest low (or highest
// high) of the fast window.
func (s *SMACross) GenerateSignal(_ context.Context, bars []domain.Bar) (domain.Recommendation, error) {
	if len(bars) < s.slow {
		return domain.Hold, fmt.Errorf("sma_cross: %w: need %d bars, have %d", domain.ErrDataUnavailable, s.slow, len(bars))
	}
	c := closes(bars)
	fast, slow := SMA(c, s.fast), SMA(c, s.slow)
	if slow <= 0 || fast == slow {
		return domain.Hold, nil
	}

	spread := (fast - slow) / slow
	rec := domain.Recommendation{
		Probability: 0.5 + 0.5*math.Min(math.Abs(spread)/smaSpreadScale, 1),
	}
	recent := bars[len(bars)-s.fast:]
	if spread > 0 {
		rec.Action = domain.ActionBuy
		low := recent[0].Low
		for _, b := range recent[1:] {
			low = math.Min(low, b.Low)
		}
		if low > 0 {
			rec.StopLossHint = domain.Float64Ptr(low)
		}
	} else {
		rec.Action = domain.ActionSell
		high := recent[0].High
		for _, b := range recent[1:] {
			high = math.Max(high, b.High)
		}
		if high > 0 {
			rec.StopLossHint = domain.Float64Ptr(high)
		}
	}
	return rec, nil
}
