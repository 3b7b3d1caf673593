package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// YahooSource is the secondary data source. It needs no credentials and is
// independent of every venue.
type YahooSource struct {
	now func() time.Time
}

// NewYahooSource creates a YahooSource.
func NewYahooSource() *YahooSource {
	return &YahooSource{now: time.Now}
}

// interval maps a timeframe onto a chart interval and the history window
// requested for it: seven days for intraday bars, sixty for daily.
func interval(tf domain.Timeframe) (datetime.Interval, time.Duration) {
	const day = 24 * time.Hour
	switch tf.Unit {
	case domain.TimeUnitMinute:
		switch {
		case tf.N >= 30:
			return datetime.ThirtyMins, 7 * day
		case tf.N >= 15:
			return datetime.FifteenMins, 7 * day
		case tf.N >= 5:
			return datetime.FiveMins, 7 * day
		}
		return datetime.OneMin, 7 * day
	case domain.TimeUnitHour:
		return datetime.OneHour, 7 * day
	}
	return datetime.OneDay, 60 * day
}

var currencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "NZD": true, "CAD": true, "SEK": true, "NOK": true,
}

// yahooSymbol rewrites forex pairs ("EURUSD", "EUR/USD") into the chart
// form "EURUSD=X". Equity tickers pass through.
func yahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	if len(s) == 6 && currencies[s[:3]] && currencies[s[3:]] {
		return s + "=X"
	}
	return symbol
}

func (y *YahooSource) Candles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iv, window := interval(tf)
	end := y.now()
	start := end.Add(-window)
	iter := chart.Get(&chart.Params{
		Symbol:   yahooSymbol(symbol),
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: iv,
	})

	var bars []domain.Bar
	for iter.Next() {
		b := iter.Bar()
		if b.Close.IsZero() {
			continue
		}
		bars = append(bars, domain.Bar{
			Time:   time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Volume: float64(b.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo: candles %s: %w: %v", symbol, domain.ErrConnection, err)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (y *YahooSource) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q, err := quote.Get(yahooSymbol(symbol))
	if err != nil {
		return 0, fmt.Errorf("yahoo: quote %s: %w: %v", symbol, domain.ErrConnection, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("yahoo: quote %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return q.RegularMarketPrice, nil
}
