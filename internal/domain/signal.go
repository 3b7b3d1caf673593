package domain

// Action is what a signal asks the loop to do.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Recommendation is the raw output of one signal provider.
type Recommendation struct {
	Action         Action
	Probability    float64
	StopLossHint   *float64
	TakeProfitHint *float64
}

// Hold is the neutral recommendation used whenever a provider fails.
var Hold = Recommendation{Action: ActionHold}

// Contribution records one provider's part in a combined signal.
type Contribution struct {
	Provider       string
	Weight         float64
	Recommendation Recommendation
}

// Signal is the combined per-symbol decision for a single tick. It is never
// persisted.
type Signal struct {
	Symbol              string
	Action              Action
	Probability         float64
	StopLossHint        *float64
	TakeProfitHint      *float64
	EnsembleProbability *float64
	Anomaly             bool
	Contributions       []Contribution
}
