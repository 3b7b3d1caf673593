package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore journals orders as the loop submits and confirms them. The
// venue stays the source of truth; the journal is for reporting.
type OrderStore interface {
	Upsert(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, opts ListOpts) ([]Order, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// ProfileStore persists the risk profile table.
type ProfileStore interface {
	LoadProfiles(ctx context.Context) (map[string]RiskProfile, error)
	SaveProfile(ctx context.Context, profile RiskProfile) error
	DeleteProfile(ctx context.Context, id string) error
}

// ActiveProfileStore persists which profile is active. Load returns
// ErrNotFound when nothing has been saved yet.
type ActiveProfileStore interface {
	LoadActiveProfile(ctx context.Context) (string, error)
	SaveActiveProfile(ctx context.Context, id string) error
}

// DailyCounters is the per-trading-day trade count and realized P/L.
type DailyCounters struct {
	Day       string    `json:"day"` // 2006-01-02 in the calendar time zone
	Trades    int       `json:"trades"`
	PL        float64   `json:"pl"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CounterStore persists daily counters so they survive a restart.
// LoadCounters returns ErrNotFound for a day with no row.
type CounterStore interface {
	LoadCounters(ctx context.Context, day string) (DailyCounters, error)
	SaveCounters(ctx context.Context, c DailyCounters) error
}

// ViolationStore persists detected risk violations.
type ViolationStore interface {
	Insert(ctx context.Context, v Violation) error
	ListRecent(ctx context.Context, limit int) ([]Violation, error)
}
