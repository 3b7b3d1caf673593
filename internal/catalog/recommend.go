package catalog

import (
	"fmt"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Recommendation is the outcome of Recommend.
type Recommendation struct {
	ID        string `json:"id"`
	Rationale string `json:"rationale"`
}

// rule matches a regime; an empty field matches anything.
type rule struct {
	volatility domain.Volatility
	trend      domain.Trend
	profile    string
	rationale  string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{domain.VolatilityHigh, domain.TrendBullish, "aggressive", "High volatility with a bullish trend favours an aggressive profile."},
	{domain.VolatilityHigh, domain.TrendBearish, "conservative", "High volatility with a bearish trend favours a conservative profile."},
	{"", domain.TrendBullish, "moderate", "A bullish trend favours a moderate profile."},
	{"", domain.TrendBearish, "conservative", "A bearish trend favours a conservative profile."},
	{domain.VolatilityLow, "", "trend_following", "Low volatility favours following established trends."},
}

func (r rule) matches(g domain.Regime) bool {
	return (r.volatility == "" || r.volatility == g.Volatility) &&
		(r.trend == "" || r.trend == g.Trend)
}

// Recommend maps a regime onto a profile id through the rule table. With
// no regime, no matching rule, or a recommended id that is not in the
// catalog, the active profile is returned unchanged.
func (c *Catalog) Recommend(regime *domain.Regime) Recommendation {
	current := c.ActiveID()
	if regime == nil {
		return Recommendation{ID: current, Rationale: "No market regime supplied; keeping the current profile."}
	}
	g := *regime
	if g.Volatility == "" {
		g.Volatility = domain.VolatilityMedium
	}
	if g.Trend == "" {
		g.Trend = domain.TrendNeutral
	}

	rec := Recommendation{ID: current, Rationale: "Market conditions do not suggest a profile change."}
	for _, r := range rules {
		if r.matches(g) {
			rec = Recommendation{ID: r.profile, Rationale: r.rationale}
			break
		}
	}
	if _, ok := c.Get(rec.ID); !ok {
		rec = Recommendation{ID: current, Rationale: fmt.Sprintf("%s Profile %q is not configured; keeping the current profile.", rec.Rationale, rec.ID)}
	}
	if rec.ID == current {
		rec.Rationale = "Current profile remains appropriate. " + rec.Rationale
	}
	return rec
}

// ShouldChange reports whether Recommend would switch away from the
// active profile.
func (c *Catalog) ShouldChange(regime *domain.Regime) bool {
	return c.Recommend(regime).ID != c.ActiveID()
}

// Verification is the compliance report from VerifyRiskParameters.
type Verification struct {
	Compliant             bool     `json:"compliant"`
	WithinMaxPositionSize bool     `json:"within_max_position_size"`
	WithinMaxOpen         bool     `json:"within_max_open_positions"`
	Violations            []string `json:"violations"`
}

// VerifyRiskParameters checks a set of positions against the active
// profile's open-position count and per-position size cap.
func (c *Catalog) VerifyRiskParameters(portfolioValue float64, positions []domain.Position) Verification {
	p := c.Active()
	v := Verification{WithinMaxPositionSize: true, WithinMaxOpen: true}

	if len(positions) > p.MaxOpenPositions {
		v.WithinMaxOpen = false
		v.Violations = append(v.Violations, fmt.Sprintf("too many open positions: %d/%d", len(positions), p.MaxOpenPositions))
	}
	maxValue := p.MaxPositionSizePct * portfolioValue
	for _, pos := range positions {
		if n := pos.Notional(); n > maxValue {
			v.WithinMaxPositionSize = false
			v.Violations = append(v.Violations, fmt.Sprintf("position %s exceeds max size: %.2f/%.2f", pos.Symbol, n, maxValue))
		}
	}
	v.Compliant = v.WithinMaxOpen && v.WithinMaxPositionSize
	return v
}
