package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// ProviderInfo holds runtime info for a registered provider (for status APIs).
type ProviderInfo struct {
	Name       string     `json:"name"`
	Weight     float64    `json:"weight"`
	Signals    int64      `json:"signals"`
	Errors     int64      `json:"errors"`
	LastSignal *time.Time `json:"last_signal,omitempty"`
}

type entry struct {
	p    Provider
	info ProviderInfo
}

// Registry holds an ordered list of providers fixed at construction time
// and combines their outputs with a weighted vote. It is safe for
// concurrent use.
type Registry struct {
	entries []*entry
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger.With(slog.String("component", "signals"))}
}

// Register appends a provider with the given weight. Providers with a
// non-positive weight are ignored. A second provider with the same name
// is rejected.
func (r *Registry) Register(p Provider, weight float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.p.Name() == p.Name() {
			return fmt.Errorf("strategy: register %q: %w", p.Name(), domain.ErrAlreadyExists)
		}
	}
	if weight <= 0 {
		r.logger.Info("provider disabled by weight", slog.String("provider", p.Name()))
		return nil
	}
	r.entries = append(r.entries, &entry{p: p, info: ProviderInfo{Name: p.Name(), Weight: weight}})
	return nil
}

// Len returns the number of active providers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// List returns runtime info in registration order.
func (r *Registry) List() []ProviderInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProviderInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	return out
}

// Evaluate asks every provider for a recommendation and combines them.
//
// Each buy adds weight*probability to a net score and each sell subtracts
// it; holds only add weight. The combined action is the sign of the net
// score and the combined probability is |net| / total weight. The
// ensemble probability is the weighted mean of all raw probabilities.
// Hints come from the first provider, in registration order, that agrees
// with the combined action and supplied one.
func (r *Registry) Evaluate(ctx context.Context, symbol string, bars []domain.Bar) domain.Signal {
	r.mu.Lock()
	entries := append([]*entry(nil), r.entries...)
	r.mu.Unlock()

	sig := domain.Signal{Symbol: symbol, Action: domain.ActionHold}
	if len(entries) == 0 {
		return sig
	}

	var net, total, ensemble float64
	for _, e := range entries {
		rec, err := r.call(ctx, e.p, bars)
		now := time.Now()
		r.mu.Lock()
		if err != nil {
			e.info.Errors++
		} else {
			e.info.Signals++
			e.info.LastSignal = &now
		}
		weight := e.info.Weight
		r.mu.Unlock()

		if err != nil {
			r.logger.Debug("provider fell back to hold",
				slog.String("provider", e.p.Name()),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			rec = domain.Hold
		}
		rec.Probability = clamp01(rec.Probability)

		sig.Contributions = append(sig.Contributions, domain.Contribution{
			Provider:       e.p.Name(),
			Weight:         weight,
			Recommendation: rec,
		})
		total += weight
		ensemble += weight * rec.Probability
		switch rec.Action {
		case domain.ActionBuy:
			net += weight * rec.Probability
		case domain.ActionSell:
			net -= weight * rec.Probability
		}

		if a, ok := e.p.(AnomalyScorer); ok && !sig.Anomaly {
			flag, err := r.anomalous(ctx, a, bars)
			if err != nil {
				r.logger.Debug("anomaly scorer failed", slog.String("provider", e.p.Name()), slog.String("error", err.Error()))
			}
			sig.Anomaly = flag
		}
	}

	switch {
	case net > 0:
		sig.Action = domain.ActionBuy
	case net < 0:
		sig.Action = domain.ActionSell
	}
	sig.Probability = math.Abs(net) / total
	ens := ensemble / total
	sig.EnsembleProbability = &ens

	if sig.Action != domain.ActionHold {
		for _, c := range sig.Contributions {
			if c.Recommendation.Action != sig.Action {
				continue
			}
			if sig.StopLossHint == nil && c.Recommendation.StopLossHint != nil {
				sig.StopLossHint = c.Recommendation.StopLossHint
			}
			if sig.TakeProfitHint == nil && c.Recommendation.TakeProfitHint != nil {
				sig.TakeProfitHint = c.Recommendation.TakeProfitHint
			}
		}
	}
	return sig
}

// call invokes the provider and converts a panic into an error.
func (r *Registry) call(ctx context.Context, p Provider, bars []domain.Bar) (rec domain.Recommendation, err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("provider panicked", slog.String("provider", p.Name()), slog.Any("panic", v))
			rec, err = domain.Hold, fmt.Errorf("strategy: %s panicked: %v", p.Name(), v)
		}
	}()
	return p.GenerateSignal(ctx, bars)
}

func (r *Registry) anomalous(ctx context.Context, a AnomalyScorer, bars []domain.Bar) (flag bool, err error) {
	defer func() {
		if v := recover(); v != nil {
			flag, err = false, fmt.Errorf("strategy: anomaly scorer panicked: %v", v)
		}
	}()
	return a.Anomalous(ctx, bars)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Builtins returns the built-in providers keyed by name.
func Builtins(cfg Config, logger *slog.Logger) map[string]Provider {
	return map[string]Provider{
		"sma_cross":      NewSMACross(cfg),
		"mean_reversion": NewMeanReversion(cfg, logger),
	}
}
