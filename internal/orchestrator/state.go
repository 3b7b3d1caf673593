// Package orchestrator runs the trading control loop: it refreshes the
// account, evaluates watched symbols, gates entries through the risk
// engine, submits orders and evaluates exits, on a fixed cadence.
package orchestrator

// State is the loop's position in its state machine.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateMarketClosed State = "market_closed"
	StateScanning     State = "scanning"
	StateEvaluating   State = "evaluating"
	StateSizing       State = "sizing"
	StateExecuting    State = "executing"
	StateMonitoring   State = "monitoring"
	StateHalted       State = "halted"
	StateStopped      State = "stopped"
)
