// Package marketdata serves candles, prices and market hours with a
// two-source failover: the active venue first, then an independent
// secondary source.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/venue"
)

// Source serves candles and last prices.
type Source interface {
	Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Venues yields the active venue. *venue.Registry satisfies it.
type Venues interface {
	Active() venue.Adapter
}

// SourceKind names which source a request tries first.
type SourceKind string

const (
	Primary   SourceKind = "primary"
	Secondary SourceKind = "secondary"
)

func (k SourceKind) other() SourceKind {
	if k == Primary {
		return Secondary
	}
	return Primary
}

// DefaultMaxFailures is the failure count that forces the feed back to
// the primary source.
const DefaultMaxFailures = 3

// Options configures a Feed.
type Options struct {
	// Secondary may be nil, in which case every fallback attempt fails.
	Secondary   Source
	MaxFailures int
	// Equities is the static session used when an equities venue cannot
	// answer an hours query. Forex and crypto use their fixed calendars.
	Equities *calendar.Session
	// Prices, when set, receives every price the feed serves.
	Prices domain.PriceCache
	// StalePriceAge bounds how old a cached price may be when both
	// sources fail. Zero disables the cached fallback.
	StalePriceAge time.Duration
	Now           func() time.Time
}

// Feed implements the failover policy. Only the preferred source and the
// failure counter are shared state; both sit behind mu and the lock is
// never held across a network call.
type Feed struct {
	venues Venues
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	source   SourceKind
	failures int
}

// NewFeed creates a Feed that prefers the primary source.
func NewFeed(venues Venues, opts Options, logger *slog.Logger) *Feed {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Equities == nil {
		opts.Equities = calendar.USEquities()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Feed{
		venues: venues,
		opts:   opts,
		logger: logger.With(slog.String("component", "market_data")),
		source: Primary,
	}
}

// State reports the preferred source and the consecutive failure count.
func (f *Feed) State() (SourceKind, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source, f.failures
}

func (f *Feed) sourceFor(k SourceKind) (Source, error) {
	if k == Secondary {
		if f.opts.Secondary == nil {
			return nil, fmt.Errorf("marketdata: %w: no secondary source", domain.ErrDataUnavailable)
		}
		return f.opts.Secondary, nil
	}
	a := f.venues.Active()
	if a == nil {
		return nil, fmt.Errorf("marketdata: %w: no active venue", domain.ErrNotConnected)
	}
	return a, nil
}

func (f *Feed) fetchCandles(ctx context.Context, k SourceKind, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	src, err := f.sourceFor(k)
	if err != nil {
		return nil, err
	}
	bars, err := src.Candles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: %s %s: %w: empty", k, symbol, domain.ErrDataUnavailable)
	}
	return bars, nil
}

// Candles tries the preferred source, and on an error or empty result
// flips the preference and tries the other source once. Each source is
// tried at most once per call. When both fail the result wraps
// domain.ErrDataUnavailable, which callers treat as "skip this symbol".
func (f *Feed) Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	f.mu.Lock()
	first := f.source
	f.mu.Unlock()

	bars, err := f.fetchCandles(ctx, first, symbol, tf, limit)
	if err == nil {
		f.mu.Lock()
		f.failures = 0
		f.mu.Unlock()
		return bars, nil
	}
	f.recordFailure(first, symbol, err)

	second := first.other()
	bars, err2 := f.fetchCandles(ctx, second, symbol, tf, limit)
	if err2 == nil {
		return bars, nil
	}
	f.logger.Warn("candles unavailable from both sources",
		slog.String("symbol", symbol),
		slog.String(string(first), err.Error()),
		slog.String(string(second), err2.Error()),
	)
	return nil, fmt.Errorf("marketdata: candles %s: %w", symbol, domain.ErrDataUnavailable)
}

func (f *Feed) recordFailure(failed SourceKind, symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	f.source = failed.other()
	if f.failures >= f.opts.MaxFailures {
		f.failures = 0
		f.source = Primary
	}
	f.logger.Debug("candle source failed",
		slog.String("source", string(failed)),
		slog.String("symbol", symbol),
		slog.Int("consecutive_failures", f.failures),
		slog.String("next", string(f.source)),
		slog.String("error", err.Error()),
	)
}

// CurrentPrice prefers the venue, then the secondary source, then a cached
// price no older than StalePriceAge. It keeps no failover state.
func (f *Feed) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var errs []error
	for _, k := range []SourceKind{Primary, Secondary} {
		src, err := f.sourceFor(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		px, err := src.CurrentPrice(ctx, symbol)
		if err == nil && px > 0 {
			f.cachePrice(ctx, symbol, px)
			return px, nil
		}
		if err == nil {
			err = fmt.Errorf("%s: non-positive price", k)
		}
		errs = append(errs, err)
	}
	if px, ok := f.cachedPrice(ctx, symbol); ok {
		return px, nil
	}
	return 0, fmt.Errorf("marketdata: price %s: %w: %w", symbol, domain.ErrDataUnavailable, errors.Join(errs...))
}

func (f *Feed) cachedPrice(ctx context.Context, symbol string) (float64, bool) {
	if f.opts.Prices == nil || f.opts.StalePriceAge <= 0 {
		return 0, false
	}
	px, at, err := f.opts.Prices.GetPrice(ctx, symbol)
	if err != nil || px <= 0 {
		return 0, false
	}
	age := f.opts.Now().Sub(at)
	if age > f.opts.StalePriceAge {
		return 0, false
	}
	f.logger.Warn("serving cached price", slog.String("symbol", symbol), slog.Duration("age", age))
	return px, true
}

func (f *Feed) cachePrice(ctx context.Context, symbol string, px float64) {
	if f.opts.Prices == nil {
		return
	}
	if err := f.opts.Prices.SetPrice(ctx, symbol, px, f.opts.Now()); err != nil {
		f.logger.Warn("price cache write failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
	}
}

func (f *Feed) fallbackCalendar(a venue.Adapter) calendar.Calendar {
	vt := domain.VenueTypeEquities
	if a != nil {
		vt = a.PlatformType()
	}
	return calendar.ForVenue(vt, f.opts.Equities)
}

// IsMarketOpen asks the active venue and falls back to the static
// calendar when the venue cannot answer.
func (f *Feed) IsMarketOpen(ctx context.Context) bool {
	a := f.venues.Active()
	if a != nil {
		open, err := a.IsMarketOpen(ctx)
		if err == nil {
			return open
		}
		f.logger.Warn("venue hours unavailable, using calendar", slog.String("error", err.Error()))
	}
	return f.fallbackCalendar(a).IsOpen(f.opts.Now())
}

// NextOpenClose follows the same fallback as IsMarketOpen.
func (f *Feed) NextOpenClose(ctx context.Context) (time.Time, time.Time) {
	a := f.venues.Active()
	if a != nil {
		open, close, err := a.NextOpenClose(ctx)
		if err == nil {
			return open, close
		}
		f.logger.Warn("venue next open/close unavailable, using calendar", slog.String("error", err.Error()))
	}
	return f.fallbackCalendar(a).NextOpenClose(f.opts.Now())
}
