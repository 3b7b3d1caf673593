package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func acct(equity float64) domain.AccountSnapshot {
	return domain.AccountSnapshot{Equity: equity, Cash: equity, CapturedAt: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)}
}

func TestSizePositionScenario(t *testing.T) {
	p := moderate()
	p.MaxPositionSizePct = 0.5 // wide enough that the clamp does not bind
	e := NewEngine(DefaultConfig(), staticProfile{p}, discard())

	size, ok := e.SizePosition(50, 49, acct(100_000), nil)
	require.True(t, ok)
	assert.InDelta(t, 1000, size, 1e-9)
}

func TestSizePositionClampsToMaxPositionSize(t *testing.T) {
	e := NewEngine(DefaultConfig(), staticProfile{moderate()}, discard())
	size, ok := e.SizePosition(50, 49, acct(100_000), nil)
	require.True(t, ok)
	assert.InDelta(t, 200, size, 1e-9, "10% of 100k at $50")
}

func TestSizePositionNeverExceedsMaxNotional(t *testing.T) {
	for _, pct := range []float64{0.01, 0.05, 0.1, 0.25} {
		p := moderate()
		p.MaxPositionSizePct = pct
		p.RiskPerTrade = 0.02
		e := NewEngine(DefaultConfig(), staticProfile{p}, discard())
		for _, equity := range []float64{1_000, 25_000, 100_000, 3_000_000} {
			for _, entry := range []float64{0.5, 12, 187.3, 4200} {
				for _, dist := range []float64{0.001, 0.01, 0.5, 3} {
					size, ok := e.SizePosition(entry, entry-dist, acct(equity), nil)
					if !ok {
						continue
					}
					assert.LessOrEqual(t, size*entry, pct*equity*(1+1e-12))
				}
			}
		}
	}
}

func TestSizePositionUndefined(t *testing.T) {
	e := NewEngine(Config{VolatilityThreshold: 0.2}, staticProfile{moderate()}, discard())

	_, ok := e.SizePosition(50, 50, acct(100_000), nil)
	assert.False(t, ok, "entry == stop")

	vol := 0.35
	_, ok = e.SizePosition(50, 49, acct(100_000), &vol)
	assert.False(t, ok, "volatility above threshold")

	vol = 0.1
	_, ok = e.SizePosition(50, 49, acct(100_000), &vol)
	assert.True(t, ok)

	short, ok := e.SizePosition(50, 51, acct(100_000), nil)
	require.True(t, ok)
	assert.Greater(t, short, 0.0)
}

func TestCanOpenPositionAtOpenLimitRejects(t *testing.T) {
	p := moderate()
	e := NewEngine(DefaultConfig(), staticProfile{p}, discard())

	assert.True(t, e.CanOpenPosition(1, acct(100_000), Exposure{OpenPositions: p.MaxOpenPositions - 1}))
	assert.False(t, e.CanOpenPosition(0, acct(100_000), Exposure{OpenPositions: p.MaxOpenPositions}))
	assert.False(t, e.CanOpenPosition(0, acct(100_000), Exposure{OpenPositions: p.MaxOpenPositions + 3}))
}

func TestCanOpenPositionDailyLossScenario(t *testing.T) {
	p := moderate()
	p.MaxDailyLossPct = 0.03
	e := NewEngine(DefaultConfig(), staticProfile{p}, discard())

	for _, candidate := range []float64{0, 1, 500, 9_999} {
		assert.False(t, e.CanOpenPosition(candidate, acct(100_000), Exposure{DailyPL: -3_500}))
	}
	assert.True(t, e.CanOpenPosition(500, acct(100_000), Exposure{DailyPL: -2_500}))
}

func TestCanOpenPositionOrderOfChecks(t *testing.T) {
	p := moderate()
	e := NewEngine(DefaultConfig(), staticProfile{p}, discard())

	err := e.Check(20_000, acct(100_000), Exposure{OpenPositions: 100, DailyPL: -50_000})
	var ve *ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ViolationPositionSize, ve.Violation.Type)
	assert.Equal(t, 20_000.0, ve.Violation.Value)
	assert.ErrorIs(t, err, domain.ErrRiskViolation)
}

func TestDrawdownUsesMonotonicPeak(t *testing.T) {
	e := NewEngine(Config{MaxDrawdownPct: 0.10}, staticProfile{moderate()}, discard())

	assert.True(t, e.CanOpenPosition(100, acct(100_000), Exposure{}))
	assert.True(t, e.CanOpenPosition(100, acct(120_000), Exposure{}))
	assert.Equal(t, 120_000.0, e.Peak())

	// 100k is a 16.7% drawdown from the 120k peak.
	err := e.Check(100, acct(100_000), Exposure{})
	var ve *ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ViolationDrawdown, ve.Violation.Type)
	assert.Equal(t, domain.SeverityHigh, ve.Severity())
	assert.Equal(t, 120_000.0, e.Peak(), "peak never decreases")

	assert.True(t, e.CanOpenPosition(100, acct(110_000), Exposure{}))
}

func TestPeakRaisedWhenEarlierCheckFails(t *testing.T) {
	p := moderate()
	e := NewEngine(Config{MaxDrawdownPct: 0.10}, staticProfile{p}, discard())

	err := e.Check(1e9, acct(150_000), Exposure{OpenPositions: p.MaxOpenPositions})
	var ve *ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ViolationPositionSize, ve.Violation.Type)
	assert.Equal(t, 150_000.0, e.Peak(), "rejected call still moved the watermark")

	err = e.Check(100, acct(120_000), Exposure{})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.ViolationDrawdown, ve.Violation.Type)
	assert.InDelta(t, 0.2, ve.Violation.Value, 1e-9)
}
