package domain

import "time"

// ViolationType names the limit that was breached.
type ViolationType string

const (
	ViolationDrawdown        ViolationType = "drawdown"
	ViolationPositionSize    ViolationType = "position_size"
	ViolationMissingStopLoss ViolationType = "missing_stop_loss"
	ViolationRiskReward      ViolationType = "risk_reward_ratio"
	ViolationTotalRisk       ViolationType = "total_risk"
)

// Severity orders violations for alert routing.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Violation is one detected breach. Never mutated after creation.
type Violation struct {
	Type     ViolationType `json:"type"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Symbol   string        `json:"symbol,omitempty"`
	Value    float64       `json:"value"`
	Limit    float64       `json:"limit"`
	At       time.Time     `json:"at"`
}
