package domain

import (
	"fmt"
	"time"
)

// RiskLevel is the coarse label attached to a profile.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// RiskProfile is a named bundle of sizing and limit parameters. Percentages
// are fractions (0.05 = 5%).
type RiskProfile struct {
	ID                 string    `yaml:"-" json:"id"`
	Name               string    `yaml:"name" json:"name"`
	Description        string    `yaml:"description" json:"description"`
	RiskLevel          RiskLevel `yaml:"risk_level" json:"risk_level"`
	MaxPositionSizePct float64   `yaml:"max_position_size" json:"max_position_size"`
	StopLossPct        float64   `yaml:"stop_loss_percentage" json:"stop_loss_percentage"`
	TakeProfitPct      float64   `yaml:"take_profit_percentage" json:"take_profit_percentage"`
	MaxDailyLossPct    float64   `yaml:"max_daily_loss" json:"max_daily_loss"`
	MaxOpenPositions   int       `yaml:"max_open_positions" json:"max_open_positions"`
	MinRiskRewardRatio float64   `yaml:"min_risk_reward_ratio" json:"min_risk_reward_ratio"`
	RiskPerTrade       float64   `yaml:"risk_per_trade" json:"risk_per_trade"`
	StopLossRequired   bool      `yaml:"stop_loss_required" json:"stop_loss_required"`
	UpdatedAt          time.Time `yaml:"-" json:"updated_at"`
}

// Validate checks that every required field is present and in range.
func (p RiskProfile) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: profile name is required", ErrConfig)
	case p.Description == "":
		return fmt.Errorf("%w: profile %q: description is required", ErrConfig, p.Name)
	case p.RiskLevel != RiskLevelLow && p.RiskLevel != RiskLevelMedium && p.RiskLevel != RiskLevelHigh:
		return fmt.Errorf("%w: profile %q: risk_level %q must be low, medium or high", ErrConfig, p.Name, p.RiskLevel)
	case p.MaxPositionSizePct <= 0 || p.MaxPositionSizePct > 1:
		return fmt.Errorf("%w: profile %q: max_position_size must be in (0, 1]", ErrConfig, p.Name)
	case p.StopLossPct <= 0 || p.StopLossPct >= 1:
		return fmt.Errorf("%w: profile %q: stop_loss_percentage must be in (0, 1)", ErrConfig, p.Name)
	case p.TakeProfitPct <= 0:
		return fmt.Errorf("%w: profile %q: take_profit_percentage must be positive", ErrConfig, p.Name)
	case p.MaxDailyLossPct < 0 || p.MaxDailyLossPct >= 1:
		return fmt.Errorf("%w: profile %q: max_daily_loss must be in [0, 1)", ErrConfig, p.Name)
	case p.MaxOpenPositions < 0:
		return fmt.Errorf("%w: profile %q: max_open_positions must not be negative", ErrConfig, p.Name)
	case p.RiskPerTrade < 0 || p.RiskPerTrade >= 1:
		return fmt.Errorf("%w: profile %q: risk_per_trade must be in [0, 1)", ErrConfig, p.Name)
	}
	return nil
}

// Volatility is a coarse volatility bucket supplied by the caller.
type Volatility string

const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// Trend is a coarse trend direction supplied by the caller.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Regime is the market context used for profile recommendation.
type Regime struct {
	Volatility Volatility `json:"volatility"`
	Trend      Trend      `json:"trend"`
}
