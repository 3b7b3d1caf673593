package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixed struct {
	name string
	rec  domain.Recommendation
	err  error
}

func (f fixed) Name() string { return f.name }

func (f fixed) GenerateSignal(context.Context, []domain.Bar) (domain.Recommendation, error) {
	return f.rec, f.err
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) GenerateSignal(context.Context, []domain.Bar) (domain.Recommendation, error) {
	panic("index out of range")
}

type flagging struct{ fixed }

func (flagging) Anomalous(context.Context, []domain.Bar) (bool, error) { return true, nil }

// series builds n bars whose closes follow step per bar from start.
func series(n int, start, step float64) []domain.Bar {
	t0 := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	out := make([]domain.Bar, n)
	px := start
	for i := range out {
		out[i] = domain.Bar{Time: t0.Add(time.Duration(i) * 15 * time.Minute), Open: px, High: px + 0.5, Low: px - 0.5, Close: px, Volume: 1000}
		px += step
	}
	return out
}

func TestEvaluateWeightedVote(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(fixed{name: "a", rec: domain.Recommendation{Action: domain.ActionBuy, Probability: 0.9, StopLossHint: domain.Float64Ptr(95)}}, 2))
	require.NoError(t, r.Register(fixed{name: "b", rec: domain.Recommendation{Action: domain.ActionSell, Probability: 0.6}}, 1))
	require.NoError(t, r.Register(fixed{name: "c", rec: domain.Hold}, 1))

	sig := r.Evaluate(context.Background(), "AAPL", nil)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	// (2*0.9 - 1*0.6) / 4
	assert.InDelta(t, 0.3, sig.Probability, 1e-9)
	require.NotNil(t, sig.EnsembleProbability)
	assert.InDelta(t, 0.6, *sig.EnsembleProbability, 1e-9)
	require.NotNil(t, sig.StopLossHint)
	assert.Equal(t, 95.0, *sig.StopLossHint)
	assert.Len(t, sig.Contributions, 3)
}

func TestEvaluateSingleProviderPassesThrough(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(fixed{name: "a", rec: domain.Recommendation{Action: domain.ActionSell, Probability: 0.8}}, 1))

	sig := r.Evaluate(context.Background(), "AAPL", nil)
	assert.Equal(t, domain.ActionSell, sig.Action)
	assert.InDelta(t, 0.8, sig.Probability, 1e-9)
}

func TestFailingProvidersBecomeHold(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(panicky{}, 1))
	require.NoError(t, r.Register(fixed{name: "err", rec: domain.Recommendation{Action: domain.ActionBuy, Probability: 1}, err: errors.New("model offline")}, 1))

	var sig domain.Signal
	require.NotPanics(t, func() { sig = r.Evaluate(context.Background(), "AAPL", nil) })
	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.Zero(t, sig.Probability)
	for _, c := range sig.Contributions {
		assert.Equal(t, domain.Hold, c.Recommendation)
	}

	info := r.List()
	require.Len(t, info, 2)
	assert.EqualValues(t, 1, info[0].Errors)
	assert.EqualValues(t, 1, info[1].Errors)
}

func TestRegisterRules(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(fixed{name: "a"}, 1))
	assert.ErrorIs(t, r.Register(fixed{name: "a"}, 1), domain.ErrAlreadyExists)
	require.NoError(t, r.Register(fixed{name: "off"}, 0))
	assert.Equal(t, 1, r.Len())

	sig := NewRegistry(discard()).Evaluate(context.Background(), "AAPL", nil)
	assert.Equal(t, domain.ActionHold, sig.Action)
}

func TestAnomalyFlagPropagates(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(flagging{fixed{name: "f", rec: domain.Recommendation{Action: domain.ActionBuy, Probability: 1}}}, 1))
	assert.True(t, r.Evaluate(context.Background(), "AAPL", nil).Anomaly)
}

func TestSMACross(t *testing.T) {
	ctx := context.Background()
	p := NewSMACross(Config{FastPeriod: 5, SlowPeriod: 20})

	rec, err := p.GenerateSignal(ctx, series(30, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, rec.Action)
	assert.Greater(t, rec.Probability, 0.5)
	assert.LessOrEqual(t, rec.Probability, 1.0)
	require.NotNil(t, rec.StopLossHint)
	assert.Less(t, *rec.StopLossHint, 129.0)

	rec, err = p.GenerateSignal(ctx, series(30, 200, -1))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, rec.Action)
	require.NotNil(t, rec.StopLossHint)

	rec, err = p.GenerateSignal(ctx, series(30, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, rec.Action)

	_, err = p.GenerateSignal(ctx, series(10, 100, 1))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestMeanReversion(t *testing.T) {
	ctx := context.Background()
	p := NewMeanReversion(Config{SlowPeriod: 20, ZScoreThreshold: 2, AnomalyZScore: 4}, discard())

	bars := series(21, 100, 0)
	for i := range bars[:20] {
		if i%2 == 0 {
			bars[i].Close = 101
		} else {
			bars[i].Close = 99
		}
	}
	bars[20].Close = 95 // 5 sigma below the mean of 100

	rec, err := p.GenerateSignal(ctx, bars)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, rec.Action)
	assert.InDelta(t, 1.0, rec.Probability, 1e-9)
	require.NotNil(t, rec.TakeProfitHint)
	assert.InDelta(t, 100, *rec.TakeProfitHint, 1e-9)

	bars[20].Close = 100.5
	rec, err = p.GenerateSignal(ctx, bars)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, rec.Action)

	_, err = p.GenerateSignal(ctx, bars[:10])
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestAnomalyAndVolatility(t *testing.T) {
	ctx := context.Background()
	p := NewMeanReversion(DefaultConfig(), discard())

	calm := series(30, 100, 0.1)
	flag, err := p.Anomalous(ctx, calm)
	require.NoError(t, err)
	assert.False(t, flag)

	crashed := append(series(29, 100, 0), domain.Bar{Close: 80})
	flag, err = p.Anomalous(ctx, crashed)
	require.NoError(t, err)
	assert.True(t, flag)
	assert.True(t, DetectFlashCrash(crashed, 0.10))

	assert.Zero(t, Volatility(series(30, 100, 0)))
	assert.Greater(t, Volatility(crashed), 0.0)
	assert.Equal(t, 0.0, SMA([]float64{1, 2}, 3))
	assert.InDelta(t, 2.5, SMA([]float64{1, 2, 3}, 2), 1e-9)
}
