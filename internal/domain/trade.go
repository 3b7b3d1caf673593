package domain

import "time"

// TradeAction says whether a trade opened or closed a position.
type TradeAction string

const (
	TradeOpen  TradeAction = "open"
	TradeClose TradeAction = "close"
)

// TradeEvent is a confirmed fill as reported to the dashboard and the
// notification channels.
type TradeEvent struct {
	Action  TradeAction `json:"action"`
	Order   Order       `json:"order"`
	StopID  string      `json:"stop_order_id,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Profile string      `json:"profile"`
	At      time.Time   `json:"at"`
}
