package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// TimeUnit is the unit of a Timeframe.
type TimeUnit string

const (
	TimeUnitMinute TimeUnit = "Min"
	TimeUnitHour   TimeUnit = "Hour"
	TimeUnitDay    TimeUnit = "Day"
	TimeUnitWeek   TimeUnit = "Week"
)

// Timeframe is a candle width such as 15Min or 1Day.
type Timeframe struct {
	N    int
	Unit TimeUnit
}

// String renders the venue-style form, e.g. "15Min".
func (t Timeframe) String() string {
	return strconv.Itoa(t.N) + string(t.Unit)
}

// Duration returns the wall-clock width of one bar.
func (t Timeframe) Duration() time.Duration {
	n := time.Duration(t.N)
	switch t.Unit {
	case TimeUnitMinute:
		return n * time.Minute
	case TimeUnitHour:
		return n * time.Hour
	case TimeUnitDay:
		return n * 24 * time.Hour
	case TimeUnitWeek:
		return n * 7 * 24 * time.Hour
	}
	return 0
}

// Intraday reports whether bars are shorter than a day.
func (t Timeframe) Intraday() bool {
	return t.Unit == TimeUnitMinute || t.Unit == TimeUnitHour
}

// ParseTimeframe accepts forms like "15Min", "1Hour", "1H", "1Day", "1D".
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return Timeframe{}, fmt.Errorf("%w: timeframe %q has no count", ErrConfig, s)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return Timeframe{}, fmt.Errorf("%w: timeframe %q has invalid count", ErrConfig, s)
	}
	var unit TimeUnit
	switch strings.ToLower(s[i:]) {
	case "min", "m", "minute", "t":
		unit = TimeUnitMinute
	case "hour", "h":
		unit = TimeUnitHour
	case "day", "d":
		unit = TimeUnitDay
	case "week", "w":
		unit = TimeUnitWeek
	default:
		return Timeframe{}, fmt.Errorf("%w: timeframe %q has unknown unit", ErrConfig, s)
	}
	return Timeframe{N: n, Unit: unit}, nil
}
