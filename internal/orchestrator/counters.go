package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// dayLayout is the calendar-date key for daily counters.
const dayLayout = "2006-01-02"

// Tally is the cumulative win/loss record of one strategy.
type Tally struct {
	Strategy string  `json:"strategy"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	PL       float64 `json:"pl"`
}

// counters owns the daily trade count, daily realized P/L and the
// per-strategy tally. Counts only ever grow within a day; Roll is the
// only way to clear them.
type counters struct {
	mu    sync.Mutex
	daily domain.DailyCounters
	tally map[string]*Tally
}

func newCounters() *counters {
	return &counters{tally: make(map[string]*Tally)}
}

// Restore adopts persisted counters for day. It is a no-op once the
// counters already track a day.
func (c *counters) Restore(d domain.DailyCounters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.daily.Day != "" {
		return
	}
	c.daily = d
}

// Roll starts a new day if day is later than the tracked one. It returns
// the previous day's counters and true when a reset happened. A day that
// is equal to or earlier than the tracked one never resets.
func (c *counters) Roll(day string, now time.Time) (domain.DailyCounters, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.daily.Day != "" && day <= c.daily.Day {
		return domain.DailyCounters{}, false
	}
	prev := c.daily
	c.daily = domain.DailyCounters{Day: day, UpdatedAt: now}
	return prev, true
}

// RecordOpen counts one confirmed entry.
func (c *counters) RecordOpen(now time.Time) domain.DailyCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.daily.Trades++
	c.daily.UpdatedAt = now
	return c.daily
}

// RecordClose adds a confirmed exit's realized P/L.
func (c *counters) RecordClose(strategy string, pnl float64, now time.Time) domain.DailyCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.daily.PL += pnl
	c.daily.UpdatedAt = now
	t, ok := c.tally[strategy]
	if !ok {
		t = &Tally{Strategy: strategy}
		c.tally[strategy] = t
	}
	t.PL += pnl
	if pnl > 0 {
		c.daily.Wins++
		t.Wins++
	} else {
		c.daily.Losses++
		t.Losses++
	}
	return c.daily
}

// Daily returns a copy of today's counters.
func (c *counters) Daily() domain.DailyCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.daily
}

// Tallies returns a copy of the per-strategy tally sorted by strategy.
func (c *counters) Tallies() []Tally {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Tally, 0, len(c.tally))
	for _, t := range c.tally {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}
