// Package strategy defines the signal-provider contract the trading loop
// consumes and the registry that combines providers into one signal.
package strategy

import (
	"context"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Provider turns a candle series into a recommendation. Bars are oldest
// first. A provider that errors or panics is treated as Hold.
type Provider interface {
	Name() string
	GenerateSignal(ctx context.Context, bars []domain.Bar) (domain.Recommendation, error)
}

// AnomalyScorer is implemented by providers that can flag an abnormal
// market. The loop does not open positions on an anomalous signal.
type AnomalyScorer interface {
	Anomalous(ctx context.Context, bars []domain.Bar) (bool, error)
}

// Config holds provider parameters shared across the built-in providers.
type Config struct {
	FastPeriod int
	SlowPeriod int
	// ZScoreThreshold is the deviation, in standard deviations, before the
	// mean reversion provider leans one way.
	ZScoreThreshold float64
	// AnomalyZScore flags the last bar's return as anomalous past this
	// many standard deviations.
	AnomalyZScore float64
}

// DefaultConfig returns the provider defaults.
func DefaultConfig() Config {
	return Config{
		FastPeriod:      10,
		SlowPeriod:      30,
		ZScoreThreshold: 2.0,
		AnomalyZScore:   4.0,
	}
}
