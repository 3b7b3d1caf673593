package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testApp(t *testing.T, mutate ...func(*config.Config)) *App {
	t.Helper()
	cfg := config.Defaults()
	cfg.Catalog.File = filepath.Join(t.TempDir(), "strategies.yaml")
	for _, m := range mutate {
		m(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return New(&cfg, discard())
}

func wire(t *testing.T, a *App) *Dependencies {
	t.Helper()
	deps, cleanup, err := Wire(context.Background(), a.cfg, a.logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return deps
}

func TestBuildVenuesDefault(t *testing.T) {
	a := testApp(t)
	reg, err := a.buildVenues(nil, calendar.USEquities(), false)
	require.NoError(t, err)

	assert.Equal(t, "alpaca", reg.ActiveID())
	ids := map[string]bool{}
	for _, v := range reg.Venues() {
		ids[v.ID] = v.Enabled
	}
	assert.Equal(t, map[string]bool{"alpaca": true, "metatrader": false, "paper": true}, ids)
}

func TestBuildVenuesPaperOnly(t *testing.T) {
	a := testApp(t, func(c *config.Config) { c.Mode = "paper" })
	reg, err := a.buildVenues(nil, calendar.USEquities(), true)
	require.NoError(t, err)

	assert.Equal(t, "paper", reg.ActiveID())
	require.Len(t, reg.Venues(), 1)
	assert.False(t, reg.Active().Live())
}

func TestBuildVenuesPaperOnlyWithoutPaperVenue(t *testing.T) {
	a := testApp(t, func(c *config.Config) { delete(c.Venues, "paper") })
	_, err := a.buildVenues(nil, calendar.USEquities(), true)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestBuildSignals(t *testing.T) {
	a := testApp(t, func(c *config.Config) {
		c.Signals.Weights = map[string]float64{"sma_cross": 1, "mean_reversion": 0.5}
	})
	reg, err := a.buildSignals()
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	a.cfg.Signals.Weights = map[string]float64{"astrology": 1}
	_, err = a.buildSignals()
	assert.ErrorIs(t, err, domain.ErrConfig)

	a.cfg.Signals.Weights = map[string]float64{"sma_cross": 0}
	_, err = a.buildSignals()
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestBuildTradeComponents(t *testing.T) {
	a := testApp(t, func(c *config.Config) { c.Mode = "paper" })
	deps := wire(t, a)

	c, err := a.build(context.Background(), deps, true, true)
	require.NoError(t, err)
	require.NotNil(t, c.loop)
	require.NotNil(t, c.server)
	assert.Equal(t, "paper", c.loop.Status().Venue)
	assert.Equal(t, "moderate", c.loop.Status().Profile)
	assert.Nil(t, deps.Orders)
	assert.Empty(t, deps.Checks)
}

func TestBuildMonitorComponentsHasNoLoop(t *testing.T) {
	a := testApp(t, func(c *config.Config) { c.Server.Enabled = false })
	deps := wire(t, a)

	c, err := a.build(context.Background(), deps, false, false)
	require.NoError(t, err)
	assert.Nil(t, c.loop)
	assert.Nil(t, c.server)
	assert.NotNil(t, c.auditor)
}

type recAlerter struct {
	mu sync.Mutex
	n  int
}

func (r *recAlerter) NotifyViolation(context.Context, domain.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
}

func TestViolationFanout(t *testing.T) {
	a, b := &recAlerter{}, &recAlerter{}
	violationFanout{a, b}.NotifyViolation(context.Background(), domain.Violation{})
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}

func TestOpenCatalogFile(t *testing.T) {
	a := testApp(t)
	c, cleanup, err := OpenCatalog(context.Background(), a.cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, c.Activate(context.Background(), "conservative"))
	again, cleanup2, err := OpenCatalog(context.Background(), a.cfg, discard())
	require.NoError(t, err)
	defer cleanup2()
	assert.Equal(t, "conservative", again.ActiveID())
}
