package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// CounterStore implements domain.CounterStore, one row per trading day.
type CounterStore struct {
	pool *pgxpool.Pool
}

func NewCounterStore(pool *pgxpool.Pool) *CounterStore {
	return &CounterStore{pool: pool}
}

func (s *CounterStore) LoadCounters(ctx context.Context, day string) (domain.DailyCounters, error) {
	const query = `SELECT day, trades, pl, wins, losses, updated_at FROM daily_counters WHERE day = $1::date`
	var c domain.DailyCounters
	var d time.Time
	err := s.pool.QueryRow(ctx, query, day).Scan(&d, &c.Trades, &c.PL, &c.Wins, &c.Losses, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyCounters{}, fmt.Errorf("postgres: counters %s: %w", day, domain.ErrNotFound)
	}
	if err != nil {
		return domain.DailyCounters{}, fmt.Errorf("postgres: load counters %s: %w", day, err)
	}
	c.Day = d.Format("2006-01-02")
	return c, nil
}

// SaveCounters overwrites the row for c.Day.
func (s *CounterStore) SaveCounters(ctx context.Context, c domain.DailyCounters) error {
	const query = `
		INSERT INTO daily_counters (day, trades, pl, wins, losses, updated_at)
		VALUES ($1::date, $2, $3, $4, $5, $6)
		ON CONFLICT (day) DO UPDATE SET
			trades     = EXCLUDED.trades,
			pl         = EXCLUDED.pl,
			wins       = EXCLUDED.wins,
			losses     = EXCLUDED.losses,
			updated_at = EXCLUDED.updated_at`

	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := s.pool.Exec(ctx, query, c.Day, c.Trades, c.PL, c.Wins, c.Losses, updated); err != nil {
		return fmt.Errorf("postgres: save counters %s: %w", c.Day, err)
	}
	return nil
}

var _ domain.CounterStore = (*CounterStore)(nil)
