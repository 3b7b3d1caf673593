package domain

import (
	"context"
	"time"
)

// PriceCache holds the last good quote per symbol. The feed writes every
// quote it serves and reads one back only when both sources are down.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	// GetPrice returns ErrNotFound when no quote is cached.
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// RateLimiter counts API requests per client across server replicas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager guards a venue against two trading loops at once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry of a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries dashboard events between processes: pub/sub for live
// frames and capped streams for the trade journal.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
