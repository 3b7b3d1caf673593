// Package calendar is the static trading-hours fallback used when a venue
// cannot answer market-hours queries itself.
package calendar

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Calendar answers market-hours questions without network access.
type Calendar interface {
	IsOpen(t time.Time) bool
	NextOpenClose(t time.Time) (open, close time.Time)
}

type clock struct{ hour, min int }

func parseClock(s string) (clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return clock{}, fmt.Errorf("calendar: parse %q: %w", s, err)
	}
	return clock{hour: t.Hour(), min: t.Minute()}, nil
}

func (c clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.min, 0, 0, day.Location())
}

// Session is a weekday exchange session with a fixed open and close in one
// time zone, e.g. US equities 09:30-16:00 America/New_York. Holidays are not
// modelled.
type Session struct {
	loc   *time.Location
	open  clock
	close clock
}

// NewSession builds a weekday session.
func NewSession(tz, open, close string) (*Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar: load location %q: %w", tz, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return nil, err
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, err
	}
	if c.hour*60+c.min <= o.hour*60+o.min {
		return nil, fmt.Errorf("calendar: close %s must be after open %s", close, open)
	}
	return &Session{loc: loc, open: o, close: c}, nil
}

// USEquities is the regular NYSE/Nasdaq session.
func USEquities() *Session {
	s, err := NewSession("America/New_York", "09:30", "16:00")
	if err != nil {
		// Only reachable without tzdata; fall back to a fixed EST offset.
		return &Session{loc: time.FixedZone("EST", -5*3600), open: clock{9, 30}, close: clock{16, 0}}
	}
	return s
}

// Location returns the session time zone.
func (s *Session) Location() *time.Location { return s.loc }

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsOpen reports whether t falls inside a weekday session, close inclusive.
func (s *Session) IsOpen(t time.Time) bool {
	local := t.In(s.loc)
	if !isWeekday(local) {
		return false
	}
	open, close := s.open.on(local), s.close.on(local)
	return !local.Before(open) && !local.After(close)
}

// NextOpenClose returns the next session open strictly after t and the close
// of the current session if open, else the close of the next session.
func (s *Session) NextOpenClose(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	day := local
	var nextOpen time.Time
	for i := 0; i < 8; i++ {
		if isWeekday(day) {
			if o := s.open.on(day); o.After(local) {
				nextOpen = o
				break
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	if s.IsOpen(local) {
		return nextOpen, s.close.on(local)
	}
	return nextOpen, s.close.on(nextOpen)
}

// Forex is the 24/5 interbank week: Sunday 22:00 UTC to Friday 22:00 UTC.
type Forex struct{}

const forexHour = 22

// IsOpen reports whether the forex week is running at t.
func (Forex) IsOpen(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return u.Hour() >= forexHour
	case time.Friday:
		return u.Hour() < forexHour
	default:
		return true
	}
}

// NextOpenClose returns the next Sunday open after t and the Friday close
// that ends the current or next trading week.
func (f Forex) NextOpenClose(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)

	daysToSunday := (7 - int(u.Weekday())) % 7
	open := midnight.AddDate(0, 0, daysToSunday).Add(forexHour * time.Hour)
	if !open.After(u) {
		open = open.AddDate(0, 0, 7)
	}

	daysToFriday := (int(time.Friday) - int(u.Weekday()) + 7) % 7
	close := midnight.AddDate(0, 0, daysToFriday).Add(forexHour * time.Hour)
	if !f.IsOpen(u) || !close.After(u) {
		close = open.AddDate(0, 0, 5)
	}
	return open, close
}

// AlwaysOpen is used for venues that trade around the clock.
type AlwaysOpen struct{}

func (AlwaysOpen) IsOpen(time.Time) bool { return true }

func (AlwaysOpen) NextOpenClose(t time.Time) (time.Time, time.Time) {
	return t, t.Add(24 * time.Hour)
}

// ForVenue picks the fallback calendar for a venue type.
func ForVenue(vt domain.VenueType, equities *Session) Calendar {
	switch vt {
	case domain.VenueTypeForex:
		return Forex{}
	case domain.VenueTypeCrypto:
		return AlwaysOpen{}
	default:
		if equities == nil {
			return USEquities()
		}
		return equities
	}
}
