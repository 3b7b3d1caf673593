package catalog

import "github.com/alanyoungcy/tradeloop/internal/domain"

// DefaultActive is the profile selected when nothing has been persisted.
const DefaultActive = "moderate"

// Defaults returns the built-in profile table, keyed by id.
func Defaults() map[string]domain.RiskProfile {
	ps := []domain.RiskProfile{
		{
			ID:                 "conservative",
			Name:               "Conservative",
			Description:        "Low-risk profile for liquid large caps with tight stops",
			RiskLevel:          domain.RiskLevelLow,
			MaxPositionSizePct: 0.05,
			StopLossPct:        0.02,
			TakeProfitPct:      0.05,
			MaxDailyLossPct:    0.01,
			MaxOpenPositions:   5,
			RiskPerTrade:       0.005,
		},
		{
			ID:                 "moderate",
			Name:               "Moderate",
			Description:        "Balanced risk-reward profile",
			RiskLevel:          domain.RiskLevelMedium,
			MaxPositionSizePct: 0.10,
			StopLossPct:        0.025,
			TakeProfitPct:      0.075,
			MaxDailyLossPct:    0.02,
			MaxOpenPositions:   8,
			RiskPerTrade:       0.01,
		},
		{
			ID:                 "aggressive",
			Name:               "Aggressive",
			Description:        "High-risk, high-reward profile for momentum names",
			RiskLevel:          domain.RiskLevelHigh,
			MaxPositionSizePct: 0.15,
			StopLossPct:        0.035,
			TakeProfitPct:      0.10,
			MaxDailyLossPct:    0.03,
			MaxOpenPositions:   10,
			RiskPerTrade:       0.015,
		},
		{
			ID:                 "trend_following",
			Name:               "Trend Following",
			Description:        "Follows established trends with wider stops",
			RiskLevel:          domain.RiskLevelMedium,
			MaxPositionSizePct: 0.08,
			StopLossPct:        0.03,
			TakeProfitPct:      0.09,
			MaxDailyLossPct:    0.02,
			MaxOpenPositions:   7,
			RiskPerTrade:       0.01,
		},
		{
			ID:                 "breakout",
			Name:               "Breakout",
			Description:        "Trades breakouts from key levels",
			RiskLevel:          domain.RiskLevelHigh,
			MaxPositionSizePct: 0.10,
			StopLossPct:        0.03,
			TakeProfitPct:      0.12,
			MaxDailyLossPct:    0.025,
			MaxOpenPositions:   6,
			RiskPerTrade:       0.01,
		},
	}
	out := make(map[string]domain.RiskProfile, len(ps))
	for _, p := range ps {
		p.MinRiskRewardRatio = 2.0
		p.StopLossRequired = true
		out[p.ID] = p
	}
	return out
}
