package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/catalog"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/executor"
	"github.com/alanyoungcy/tradeloop/internal/marketdata"
	"github.com/alanyoungcy/tradeloop/internal/notify"
	"github.com/alanyoungcy/tradeloop/internal/orchestrator"
	"github.com/alanyoungcy/tradeloop/internal/risk"
	"github.com/alanyoungcy/tradeloop/internal/server"
	"github.com/alanyoungcy/tradeloop/internal/server/handler"
	"github.com/alanyoungcy/tradeloop/internal/server/ws"
	"github.com/alanyoungcy/tradeloop/internal/strategy"
	"github.com/alanyoungcy/tradeloop/internal/venue"
	"github.com/alanyoungcy/tradeloop/internal/venue/alpaca"
	"github.com/alanyoungcy/tradeloop/internal/venue/mtbridge"
	"github.com/alanyoungcy/tradeloop/internal/venue/paper"
)

const shutdownTimeout = 10 * time.Second

// components are the trading pieces built on top of Dependencies. Fields
// a mode does not need stay nil.
type components struct {
	session *calendar.Session
	venues  *venue.Registry
	catalog *catalog.Catalog
	engine  *risk.Engine
	auditor *risk.Auditor
	loop    *orchestrator.Loop
	hub     *ws.Hub
	server  *server.Server
}

// violationFanout delivers routed violations to every alerter.
type violationFanout []risk.Alerter

func (f violationFanout) NotifyViolation(ctx context.Context, v domain.Violation) {
	for _, a := range f {
		a.NotifyViolation(ctx, v)
	}
}

// TradeMode runs the trading loop, the risk audit, the dashboard hub and
// the API. With paperOnly set, only paper venues are registered and the
// first enabled one is made active.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, paperOnly bool) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.Bool("paper_only", paperOnly))

	c, err := a.build(ctx, deps, true, paperOnly)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.hub.Run(gctx) })
	g.Go(func() error { return c.loop.Run(gctx) })
	g.Go(func() error {
		return risk.NewMonitor(c.auditor, a.cfg.Loop.AuditInterval.Duration, a.logger).Run(gctx)
	})
	a.serve(gctx, g, c)

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.loop.Stop(stopCtx); err != nil {
			a.logger.Warn("loop did not stop cleanly", slog.String("error", err.Error()))
		}
		c.venues.DisconnectAll(stopCtx)
		return nil
	})

	return a.finish(g.Wait(), deps)
}

// MonitorMode runs the risk audit against the active venue without
// trading, plus the dashboard hub and API.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	c, err := a.build(ctx, deps, false, false)
	if err != nil {
		return err
	}
	connected := c.venues.ConnectAll(ctx)
	if !connected[c.venues.ActiveID()] {
		return fmt.Errorf("app: monitor: %w: venue %s did not connect", domain.ErrConnection, c.venues.ActiveID())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.hub.Run(gctx) })
	g.Go(func() error {
		return risk.NewMonitor(c.auditor, a.cfg.Loop.AuditInterval.Duration, a.logger).Run(gctx)
	})
	a.serve(gctx, g, c)
	g.Go(func() error {
		<-gctx.Done()
		disc, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.venues.DisconnectAll(disc)
		return nil
	})

	return a.finish(g.Wait(), deps)
}

// ServerMode runs the API alone. Live dashboard events arrive over the
// signal bus from a trading process; status and history come from the
// shared stores.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: server mode: %w: server.enabled is false", domain.ErrConfig)
	}

	cat, err := catalog.New(ctx, deps.Catalog, a.cfg.Catalog.DefaultActive, a.logger)
	if err != nil {
		return fmt.Errorf("app: catalog: %w", err)
	}
	c := &components{catalog: cat}
	c.hub = ws.NewHub(deps.SignalBus, ws.Config{Mode: a.cfg.Mode, StartedAt: a.startedAt}, a.logger)
	c.server = a.newServer(c, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.hub.Run(gctx) })
	a.serve(gctx, g, c)
	return a.finish(g.Wait(), deps)
}

// build assembles the venue registry, catalog, risk engine and auditor,
// hub and API server. withLoop adds the market data feed, signal
// providers, executor and trading loop.
func (a *App) build(ctx context.Context, deps *Dependencies, withLoop, paperOnly bool) (*components, error) {
	session, err := calendar.NewSession(a.cfg.Calendar.Timezone, a.cfg.Calendar.Open, a.cfg.Calendar.Close)
	if err != nil {
		return nil, fmt.Errorf("app: calendar: %w", err)
	}
	c := &components{session: session}

	yahoo := marketdata.NewYahooSource()
	if c.venues, err = a.buildVenues(yahoo, session, paperOnly); err != nil {
		return nil, err
	}
	if c.catalog, err = catalog.New(ctx, deps.Catalog, a.cfg.Catalog.DefaultActive, a.logger); err != nil {
		return nil, fmt.Errorf("app: catalog: %w", err)
	}

	c.hub = ws.NewHub(deps.SignalBus, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: a.startedAt,
		Snapshot: func() any {
			if c.loop == nil {
				return nil
			}
			return c.loop.Status()
		},
	}, a.logger)

	var (
		profiles risk.ProfileSource = c.catalog
		pin      *orchestrator.ProfilePin
	)
	if withLoop {
		pin = orchestrator.NewProfilePin(c.catalog)
		profiles = pin
	}
	c.engine = risk.NewEngine(riskConfig(a.cfg.Risk), profiles, a.logger)

	alerts := violationFanout{c.hub}
	if deps.Notifier.Enabled() {
		alerts = append(alerts, deps.Notifier)
	}
	c.auditor = risk.NewAuditor(c.engine, c.venues, alerts, deps.Violations, a.logger)

	if withLoop {
		if c.loop, err = a.buildLoop(deps, c, pin, yahoo); err != nil {
			return nil, err
		}
	}
	c.server = a.newServer(c, deps)
	return c, nil
}

// buildVenues registers one adapter per configured venue and activates
// the default (or, with paperOnly, the first enabled paper venue).
func (a *App) buildVenues(quotes paper.Quotes, session *calendar.Session, paperOnly bool) (*venue.Registry, error) {
	reg := venue.NewRegistry(a.logger)
	active := a.cfg.DefaultVenue
	if paperOnly {
		active = ""
	}

	for _, id := range a.cfg.VenueIDs() {
		vc := a.cfg.Venues[id]
		if paperOnly && vc.Kind != "paper" {
			continue
		}
		vt := domain.VenueType(vc.Type)
		retry := venue.NewRetryPolicy(vc.Retries, vc.RetryDelay.Duration)

		var ad venue.Adapter
		switch vc.Kind {
		case "alpaca":
			ad = alpaca.New(alpaca.NewClient(alpaca.ClientConfig{
				BaseURL:    vc.BaseURL,
				DataURL:    vc.DataURL,
				KeyID:      vc.APIKey,
				Secret:     vc.APISecret,
				Timeout:    vc.Timeout.Duration,
				RatePerMin: vc.RatePerMin,
				Retry:      retry,
			}), vc.Live, a.logger)
		case "mtbridge":
			ad = mtbridge.New(mtbridge.NewClient(mtbridge.ClientConfig{
				BaseURL:    vc.BaseURL,
				APIKey:     vc.APIKey,
				Account:    vc.Account,
				Timeout:    vc.Timeout.Duration,
				RatePerMin: vc.RatePerMin,
				Retry:      retry,
			}), vc.Live, a.logger)
		case "paper":
			ad = paper.New(paper.Options{
				Type:     vt,
				Cash:     vc.PaperCash,
				Quotes:   quotes,
				Calendar: calendar.ForVenue(vt, session),
			})
			if paperOnly && active == "" && vc.Enabled {
				active = id
			}
		default:
			return nil, fmt.Errorf("app: venue %s: %w: unknown kind %q", id, domain.ErrConfig, vc.Kind)
		}
		if err := reg.Register(id, ad, vc.Enabled); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	if active == "" {
		return nil, fmt.Errorf("app: %w: no enabled paper venue configured", domain.ErrConfig)
	}
	if err := reg.Activate(active); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return reg, nil
}

func (a *App) buildLoop(deps *Dependencies, c *components, pin *orchestrator.ProfilePin, yahoo *marketdata.YahooSource) (*orchestrator.Loop, error) {
	tf, err := domain.ParseTimeframe(a.cfg.Loop.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("app: loop: %w", err)
	}
	signals, err := a.buildSignals()
	if err != nil {
		return nil, err
	}

	var secondary marketdata.Source
	if a.cfg.MarketData.SecondaryEnabled {
		secondary = yahoo
	}
	feed := marketdata.NewFeed(c.venues, marketdata.Options{
		Secondary:     secondary,
		MaxFailures:   a.cfg.MarketData.MaxFailures,
		Equities:      c.session,
		Prices:        deps.PriceCache,
		StalePriceAge: a.cfg.MarketData.StalePriceAge.Duration,
	}, a.logger)

	exec := executor.New(deps.Orders, deps.Audit, executor.Options{
		FillTimeout: a.cfg.Loop.FillTimeout.Duration,
	}, a.logger)

	lc := a.cfg.Loop
	return orchestrator.New(orchestrator.Config{
		OpenInterval:      lc.OpenInterval.Duration,
		ClosedInterval:    lc.ClosedInterval.Duration,
		ReconnectInterval: lc.ReconnectInterval.Duration,
		StopTimeout:       lc.StopTimeout.Duration,
		Timeframe:         tf,
		CandleLimit:       lc.CandleLimit,
		MinBars:           lc.MinBars,
		BuyThreshold:      lc.BuyThreshold,
		ExitThreshold:     lc.ExitThreshold,
		MinNotional:       lc.MinNotional,
		MaxTradesPerDay:   lc.MaxTradesPerDay,
		LockTTL:           lc.LockTTL.Duration,
		Location:          c.session.Location(),
	}, orchestrator.Deps{
		Venues:     c.venues,
		Feed:       feed,
		Risk:       c.engine,
		Profiles:   pin,
		Signals:    signals,
		Executor:   exec,
		Watchlist:  a.cfg.Watchlists,
		Counters:   deps.Counters,
		Audit:      deps.Audit,
		Orders:     deps.Orders,
		Reports:    deps.Reports,
		Violations: c.auditor,
		Lock:       deps.LockManager,
		Dashboard:  c.hub,
		Notifier:   deps.Notifier,
	}, a.logger), nil
}

// buildSignals registers the built-in providers named in the weight table.
func (a *App) buildSignals() (*strategy.Registry, error) {
	sc := strategy.DefaultConfig()
	if a.cfg.Signals.FastPeriod > 0 {
		sc.FastPeriod = a.cfg.Signals.FastPeriod
	}
	if a.cfg.Signals.SlowPeriod > 0 {
		sc.SlowPeriod = a.cfg.Signals.SlowPeriod
	}
	builtins := strategy.Builtins(sc, a.logger)

	names := make([]string, 0, len(a.cfg.Signals.Weights))
	for name := range a.cfg.Signals.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := strategy.NewRegistry(a.logger)
	for _, name := range names {
		p, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("app: signals: %w: unknown provider %q", domain.ErrConfig, name)
		}
		if err := reg.Register(p, a.cfg.Signals.Weights[name]); err != nil {
			return nil, fmt.Errorf("app: signals: %w", err)
		}
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("app: signals: %w: no provider has a positive weight", domain.ErrConfig)
	}
	return reg, nil
}

func riskConfig(rc config.RiskConfig) risk.Config {
	return risk.Config{
		MaxDrawdownPct:      rc.MaxDrawdownPct,
		MaxTotalRiskPct:     rc.MaxTotalRiskPct,
		VolatilityThreshold: rc.VolatilityThreshold,
		EmergencyStopPct:    rc.EmergencyStopPct,
		RiskRewardLookback:  rc.RiskRewardLookback.Duration,
		HistorySize:         rc.HistorySize,
		MediumAlertMin:      rc.MediumAlertMin,
	}
}

// newServer builds the API over whatever components the mode created.
func (a *App) newServer(c *components, deps *Dependencies) *server.Server {
	if !a.cfg.Server.Enabled {
		return nil
	}
	var (
		loop  handler.LoopControl
		audit handler.RiskAudit
	)
	if c.loop != nil {
		loop = c.loop
	}
	if c.auditor != nil {
		audit = c.auditor
	}

	h := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, a.startedAt, loop, a.logger),
		Profiles: handler.NewProfileHandler(c.catalog, loop, a.logger),
		Risk:     handler.NewRiskHandler(audit, deps.Violations, a.logger),
		Journal:  handler.NewJournalHandler(deps.Reports, deps.Orders, deps.Audit, deps.SignalBus, a.logger),
	}
	if c.venues != nil {
		h.Venues = handler.NewVenueHandler(c.venues, a.logger)
	}
	return server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		AuthToken:       a.cfg.Server.AuthToken,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, h, c.hub, deps.RateLimiter, a.logger)
}

// serve starts the API server, when enabled, and shuts it down with ctx.
func (a *App) serve(ctx context.Context, g *errgroup.Group, c *components) {
	if c.server == nil {
		return
	}
	g.Go(c.server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return c.server.Shutdown(shutCtx)
	})
}

// finish waits for in-flight notifications and normalises a clean
// cancellation to nil.
func (a *App) finish(err error, deps *Dependencies) error {
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if werr := deps.Notifier.Wait(waitCtx); werr != nil {
		a.logger.Warn("notifications still in flight at shutdown", slog.String("error", werr.Error()))
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	// The process is about to exit, so deliver the failure synchronously.
	if nerr := deps.Notifier.Notify(waitCtx, notify.EventSystem, "Trading loop failed", err.Error()); nerr != nil {
		a.logger.Warn("failure notification not delivered", slog.String("error", nerr.Error()))
	}
	return err
}
